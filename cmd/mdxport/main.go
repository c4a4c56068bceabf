package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"go.uber.org/automaxprocs/maxprocs"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	os.Exit(runMain(os.Args, DefaultEnv()))
}

// runMain dispatches to a command and returns the process exit code.
// Anything that is not a command name is an import.
func runMain(args []string, env *Environment) int {
	rest := args[1:]
	setMaxProcs(slices.Contains(rest, "-v") || slices.Contains(rest, "--verbose"), env)

	if len(rest) > 0 && isCommand(rest[0]) {
		switch rest[0] {
		case "version":
			fmt.Fprintf(env.Stdout, "mdxport %s\n", Version)
			return ExitSuccess
		case "help":
			runHelp(rest[1:], env)
			return ExitSuccess
		case "doctor":
			return runDoctorCmd(rest[1:], env)
		}
	}

	ctx, stop := notifyContext(context.Background())
	defer stop()

	if err := runImport(ctx, rest, env); err != nil {
		fmt.Fprintln(env.Stderr, describeError(err))
		return exitCodeFor(err)
	}
	return ExitSuccess
}

func isCommand(s string) bool {
	switch s {
	case "version", "help", "doctor":
		return true
	}
	return false
}

// setMaxProcs configures GOMAXPROCS. The error is ignored: maxprocs.Set only
// fails on an invalid GOMAXPROCS value, and the runtime default then applies.
func setMaxProcs(verbose bool, env *Environment) {
	if verbose {
		_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
			fmt.Fprintf(env.Stderr, format+"\n", args...)
		}))
		return
	}
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))
}
