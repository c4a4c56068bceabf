// Package process runs external tools (pandoc, headless Chrome) so that
// cancelling a conversion also stops whatever they spawned.
package process

import (
	"context"
	"os/exec"
	"time"
)

// WaitDelay bounds how long Wait lingers on output pipes after a kill.
const WaitDelay = 5 * time.Second

// Command is exec.CommandContext for tools that fork: the child leads its
// own group and cancellation kills the whole group.
func Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- callers pass a configured binary
	newGroup(cmd)
	cmd.Cancel = func() error {
		KillGroup(cmd.Process.Pid)
		return cmd.Process.Kill()
	}
	cmd.WaitDelay = WaitDelay
	return cmd
}
