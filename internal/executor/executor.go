/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// ErrExecFailed indicates the platform shutdown invocation did not succeed.
var ErrExecFailed = errors.New("shutdown command failed")

// Executor performs the shutdown once the countdown expires.
type Executor interface {
	Execute(ctx context.Context) error
}

// DefaultCommand returns the immediate power-off command for goos.
func DefaultCommand(goos string) []string {
	switch goos {
	case "windows":
		return []string{"shutdown", "/s", "/t", "0"}
	default:
		return []string{"shutdown", "-h", "now"}
	}
}

// CommandExecutor runs an external shutdown command.
type CommandExecutor struct {
	command []string
	logger  zerolog.Logger
}

// NewCommand creates a command executor. An empty command selects the
// platform default.
func NewCommand(command []string, logger zerolog.Logger) *CommandExecutor {
	if len(command) == 0 {
		command = DefaultCommand(runtime.GOOS)
	}
	return &CommandExecutor{
		command: append([]string(nil), command...),
		logger:  logger.With().Str("component", "executor").Logger(),
	}
}

// Command returns the argv that Execute runs.
func (e *CommandExecutor) Command() []string {
	return append([]string(nil), e.command...)
}

// Execute runs the command and waits for it to exit.
func (e *CommandExecutor) Execute(ctx context.Context) error {
	e.logger.Warn().Strs("command", e.command).Msg("invoking shutdown command")

	out, err := exec.CommandContext(ctx, e.command[0], e.command[1:]...).CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: command not found: %s", ErrExecFailed, e.command[0])
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ErrExecFailed, ctxErr)
	}
	if msg := strings.TrimSpace(string(out)); msg != "" {
		return fmt.Errorf("%w: %v: %s", ErrExecFailed, err, msg)
	}
	return fmt.Errorf("%w: %v", ErrExecFailed, err)
}

// DryRunExecutor logs the command instead of running it.
type DryRunExecutor struct {
	command []string
	logger  zerolog.Logger
}

// NewDryRun creates an executor that only logs.
func NewDryRun(command []string, logger zerolog.Logger) *DryRunExecutor {
	if len(command) == 0 {
		command = DefaultCommand(runtime.GOOS)
	}
	return &DryRunExecutor{
		command: command,
		logger:  logger.With().Str("component", "executor").Logger(),
	}
}

// Execute logs and succeeds.
func (e *DryRunExecutor) Execute(ctx context.Context) error {
	e.logger.Warn().Strs("command", e.command).Msg("dry run: shutdown command not executed")
	return nil
}

// New selects the executor for the process configuration.
func New(dryRun bool, command []string, logger zerolog.Logger) Executor {
	if dryRun {
		return Traced(NewDryRun(command, logger), true)
	}
	return Traced(NewCommand(command, logger), false)
}

var (
	_ Executor = (*CommandExecutor)(nil)
	_ Executor = (*DryRunExecutor)(nil)
)
