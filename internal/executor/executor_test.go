/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package executor

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultCommand(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"windows", "shutdown /s /t 0"},
		{"linux", "shutdown -h now"},
		{"darwin", "shutdown -h now"},
		{"freebsd", "shutdown -h now"},
	}

	for _, tt := range tests {
		if got := strings.Join(DefaultCommand(tt.goos), " "); got != tt.want {
			t.Errorf("DefaultCommand(%q) = %q, want %q", tt.goos, got, tt.want)
		}
	}
}

func TestNewCommandDefaultsToPlatform(t *testing.T) {
	e := NewCommand(nil, zerolog.Nop())
	if got, want := strings.Join(e.Command(), " "), strings.Join(DefaultCommand(runtime.GOOS), " "); got != want {
		t.Fatalf("Command() = %q, want %q", got, want)
	}
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestCommandExecutorSuccess(t *testing.T) {
	skipOnWindows(t)

	e := NewCommand([]string{"sh", "-c", "exit 0"}, zerolog.Nop())
	if err := e.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() err=%v, want nil", err)
	}
}

func TestCommandExecutorFailureIncludesOutput(t *testing.T) {
	skipOnWindows(t)

	e := NewCommand([]string{"sh", "-c", "echo 'must be root' >&2; exit 3"}, zerolog.Nop())
	err := e.Execute(context.Background())
	if !errors.Is(err, ErrExecFailed) {
		t.Fatalf("Execute() err=%v, want %v", err, ErrExecFailed)
	}
	if !strings.Contains(err.Error(), "must be root") {
		t.Fatalf("Execute() err=%q, want command output in message", err)
	}
}

func TestCommandExecutorNotFound(t *testing.T) {
	e := NewCommand([]string{"powerdown-no-such-binary-for-tests"}, zerolog.Nop())
	err := e.Execute(context.Background())
	if !errors.Is(err, ErrExecFailed) {
		t.Fatalf("Execute() err=%v, want %v", err, ErrExecFailed)
	}
	if !strings.Contains(err.Error(), "command not found") {
		t.Fatalf("Execute() err=%q, want command not found", err)
	}
}

func TestCommandExecutorHonoursContext(t *testing.T) {
	skipOnWindows(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	e := NewCommand([]string{"sleep", "5"}, zerolog.Nop())
	start := time.Now()
	err := e.Execute(ctx)
	if !errors.Is(err, ErrExecFailed) {
		t.Fatalf("Execute() err=%v, want %v", err, ErrExecFailed)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("Execute() ignored context deadline")
	}
}

func TestDryRunNeverFails(t *testing.T) {
	e := New(true, []string{"powerdown-no-such-binary-for-tests"}, zerolog.Nop())
	if err := e.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() err=%v, want nil", err)
	}
}

func TestTracedPassesErrorThrough(t *testing.T) {
	want := errors.New("boom")
	e := Traced(executorFunc(func(context.Context) error { return want }), false)
	if err := e.Execute(context.Background()); !errors.Is(err, want) {
		t.Fatalf("Execute() err=%v, want %v", err, want)
	}
}

type executorFunc func(ctx context.Context) error

func (f executorFunc) Execute(ctx context.Context) error { return f(ctx) }
