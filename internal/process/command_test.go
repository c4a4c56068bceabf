package process

import (
	"context"
	"testing"
)

func TestCommand(t *testing.T) {
	t.Parallel()

	cmd := Command(context.Background(), "pandoc", "--version")
	if cmd.SysProcAttr == nil {
		t.Error("SysProcAttr not set")
	}
	if cmd.Cancel == nil {
		t.Error("Cancel not set")
	}
	if cmd.WaitDelay != WaitDelay {
		t.Errorf("WaitDelay = %v, want %v", cmd.WaitDelay, WaitDelay)
	}
}

// Only a PID that cannot exist is used: 0 would be our own group.
func TestKillGroup_UnknownPID(t *testing.T) {
	t.Parallel()

	KillGroup(999999999)
}
