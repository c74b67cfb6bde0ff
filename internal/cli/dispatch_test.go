package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type recorded struct {
	serve   int
	migrate int
	dev     int
	shell   int

	host string
	port string
	args []string
}

func newRecorded() (*recorded, Actions) {
	rec := &recorded{}
	return rec, Actions{
		Serve: func(host, port string) error {
			rec.serve++
			rec.host, rec.port = host, port
			return nil
		},
		Migrate: func() error { rec.migrate++; return nil },
		Dev:     func() error { rec.dev++; return nil },
		Shell: func(args []string) error {
			rec.shell++
			rec.args = args
			return nil
		},
	}
}

func (r *recorded) total() int {
	return r.serve + r.migrate + r.dev + r.shell
}

func TestDispatchApp(t *testing.T) {
	rec, actions := newRecorded()
	var stderr bytes.Buffer
	d := New(actions, &stderr)

	code := d.Dispatch(ModeApp, "0.0.0.0", "8000", nil)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if rec.serve != 1 || rec.total() != 1 {
		t.Fatalf("expected exactly one serve call, got %+v", rec)
	}
	if rec.host != "0.0.0.0" || rec.port != "8000" {
		t.Fatalf("expected host/port passthrough, got %s:%s", rec.host, rec.port)
	}
	if stderr.Len() != 0 {
		t.Fatalf("expected no stderr output, got %q", stderr.String())
	}
}

func TestDispatchMigrations(t *testing.T) {
	rec, actions := newRecorded()
	d := New(actions, &bytes.Buffer{})

	if code := d.Dispatch(ModeMigrations, "", "", nil); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if rec.migrate != 1 || rec.total() != 1 {
		t.Fatalf("expected exactly one migrate call, got %+v", rec)
	}
}

func TestDispatchDev(t *testing.T) {
	rec, actions := newRecorded()
	d := New(actions, &bytes.Buffer{})

	if code := d.Dispatch(ModeDev, "", "", nil); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if rec.dev != 1 || rec.total() != 1 {
		t.Fatalf("expected exactly one dev call, got %+v", rec)
	}
}

func TestDispatchShellPassthrough(t *testing.T) {
	rec, actions := newRecorded()
	d := New(actions, &bytes.Buffer{})

	if code := d.Dispatch(ModeShell, "", "", []string{"echo", "hi"}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if rec.shell != 1 || rec.total() != 1 {
		t.Fatalf("expected exactly one shell call, got %+v", rec)
	}
	if len(rec.args) != 2 || rec.args[0] != "echo" || rec.args[1] != "hi" {
		t.Fatalf("expected verbatim args, got %v", rec.args)
	}
}

func TestDispatchUnknownMode(t *testing.T) {
	for _, mode := range []string{"bogus", "", "APP", "serve"} {
		t.Run("mode="+mode, func(t *testing.T) {
			rec, actions := newRecorded()
			var stderr bytes.Buffer
			d := New(actions, &stderr)

			code := d.Dispatch(mode, "", "", nil)
			if code != 1 {
				t.Fatalf("expected exit 1, got %d", code)
			}
			if rec.total() != 0 {
				t.Fatalf("expected no action calls, got %+v", rec)
			}
			lines := strings.Split(strings.TrimRight(stderr.String(), "\n"), "\n")
			if len(lines) != 3 {
				t.Fatalf("expected three-line usage error, got %d lines: %q", len(lines), stderr.String())
			}
			if !strings.Contains(lines[1], "app, migrations, dev, shell") {
				t.Fatalf("expected mode list in usage, got %q", lines[1])
			}
		})
	}
}

func TestDispatchActionError(t *testing.T) {
	_, actions := newRecorded()
	actions.Migrate = func() error { return errors.New("boom") }
	var stderr bytes.Buffer
	d := New(actions, &stderr)

	if code := d.Dispatch(ModeMigrations, "", "", nil); code != 1 {
		t.Fatalf("expected exit 1 on action failure, got %d", code)
	}
	if !strings.Contains(stderr.String(), "boom") {
		t.Fatalf("expected error on stderr, got %q", stderr.String())
	}
}
