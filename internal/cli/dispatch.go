// Package cli implements the MODE-based startup dispatcher used by the
// container entrypoint. The same dispatch table is mirrored in
// docker/entrypoint.sh; keep the two in sync.
package cli

import (
	"fmt"
	"io"
)

// Recognized MODE values.
const (
	ModeApp        = "app"
	ModeMigrations = "migrations"
	ModeDev        = "dev"
	ModeShell      = "shell"
)

// usageLines is the fixed error printed for an unrecognized mode.
var usageLines = [3]string{
	"error: unrecognized MODE",
	"valid modes: app, migrations, dev, shell",
	"set MODE and re-run the entrypoint",
}

// Actions are the behaviors the dispatcher can route to. Tests inject fakes;
// the real wiring lives in cmd/orgmgr.
type Actions struct {
	Serve   func(host string, port string) error
	Migrate func() error
	Dev     func() error
	Shell   func(args []string) error
}

// Dispatcher routes a mode selector to exactly one action.
type Dispatcher struct {
	actions Actions
	stderr  io.Writer
}

// New creates a dispatcher writing usage errors to stderr.
func New(actions Actions, stderr io.Writer) *Dispatcher {
	return &Dispatcher{actions: actions, stderr: stderr}
}

// Dispatch runs the action selected by mode and returns the process exit
// code. Unrecognized modes (including "") print the fixed usage error and
// return 1 without running any action.
func (d *Dispatcher) Dispatch(mode, host, port string, args []string) int {
	var err error
	switch mode {
	case ModeApp:
		err = d.actions.Serve(host, port)
	case ModeMigrations:
		err = d.actions.Migrate()
	case ModeDev:
		err = d.actions.Dev()
	case ModeShell:
		err = d.actions.Shell(args)
	default:
		for _, line := range usageLines {
			fmt.Fprintln(d.stderr, line)
		}
		return 1
	}

	if err != nil {
		fmt.Fprintln(d.stderr, "error:", err)
		return 1
	}
	return 0
}
