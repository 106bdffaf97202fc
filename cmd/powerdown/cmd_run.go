/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/powerdown/internal/api"
	"github.com/friendsincode/powerdown/internal/events"
	"github.com/friendsincode/powerdown/internal/logging"
	"github.com/friendsincode/powerdown/internal/models"
	"github.com/friendsincode/powerdown/internal/server"
	"github.com/friendsincode/powerdown/internal/target"
	"github.com/friendsincode/powerdown/internal/telemetry"
	"github.com/friendsincode/powerdown/internal/version"
)

var (
	runAssumeYes bool
	runDryRun    bool
)

var atCmd = &cobra.Command{
	Use:   "at HH:MM",
	Short: "Shut down at a time of day",
	Long: `Shut down at the next occurrence of HH:MM local time. A time that has
already passed today means tomorrow.

The countdown runs in the foreground; press Ctrl-C to cancel.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLocal(cmd, string(target.KindTimeOfDay), args[0])
	},
}

var afterCmd = &cobra.Command{
	Use:   "after HH:MM|DURATION",
	Short: "Shut down after a delay",
	Long: `Shut down after a delay given as HH:MM or a duration such as 90m or 1h30m.

The countdown runs in the foreground; press Ctrl-C to cancel.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLocal(cmd, string(target.KindDelay), args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{atCmd, afterCmd} {
		c.Flags().BoolVarP(&runAssumeYes, "yes", "y", false, "Confirm short delays without prompting")
		c.Flags().BoolVar(&runDryRun, "dry-run", false, "Log the shutdown command instead of running it")
		rootCmd.AddCommand(c)
	}
}

func runLocal(cmd *cobra.Command, mode, value string) error {
	t, err := target.Parse(mode, value)
	if err != nil {
		return err
	}
	if err := loadConfig(); err != nil {
		return err
	}
	if runDryRun {
		cfg.DryRun = true
	}

	// The countdown owns stdout; keep log noise down.
	logger = logging.Quiet(logger)

	tracer, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "powerdown",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	ctrl := server.BuildController(cfg, events.NewBus(), logger)
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fg := foreground{
		ctrl:      ctrl,
		in:        os.Stdin,
		out:       cmd.OutOrStdout(),
		poll:      cfg.PollInterval,
		assumeYes: runAssumeYes,
	}
	return fg.run(ctx, t)
}

// foreground drives a controller from the terminal.
type foreground struct {
	ctrl      api.Controller
	in        io.Reader
	out       io.Writer
	poll      time.Duration
	assumeYes bool
}

func (f foreground) run(ctx context.Context, t target.Target) error {
	state, err := f.ctrl.Start(t)
	if err != nil {
		return err
	}

	if state == models.ScheduleStateAwaitingConfirmation {
		st := f.ctrl.Status()
		ok := f.assumeYes
		if !ok {
			prompt := fmt.Sprintf("Shutdown in %s is very soon. Proceed? [y/N]: ", formatRemaining(st.Remaining))
			ok, err = f.ask(ctx, prompt)
			if err != nil {
				_, _ = f.ctrl.Reject()
				return err
			}
		}
		if !ok {
			if _, err := f.ctrl.Reject(); err != nil {
				return err
			}
			fmt.Fprintln(f.out, "Shutdown not scheduled.")
			return nil
		}
		if _, err := f.ctrl.Confirm(); err != nil {
			return err
		}
	}

	st := f.ctrl.Status()
	fmt.Fprintf(f.out, "Shutdown scheduled for %s (%s). Press Ctrl-C to cancel.\n",
		st.FireAt.Format("Mon 15:04"), st.Target)

	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, err := f.ctrl.Cancel(); err != nil {
				// Already firing; nothing left to withdraw.
				return fmt.Errorf("cancel: %w", err)
			}
			fmt.Fprintln(f.out, "\nShutdown cancelled.")
			return nil

		case <-ticker.C:
			st := f.ctrl.Status()
			switch st.State {
			case models.ScheduleStateArmed:
				fmt.Fprintf(f.out, "\rShutting down in %s ", formatRemaining(st.Remaining))
			case models.ScheduleStateFiring:
				fmt.Fprint(f.out, "\rShutting down now...        ")
			case models.ScheduleStateCompleted:
				fmt.Fprintln(f.out, "\nShutdown command issued.")
				return nil
			case models.ScheduleStateFailed:
				fmt.Fprintln(f.out)
				return fmt.Errorf("shutdown failed: %s", st.Error)
			default:
				fmt.Fprintln(f.out, "\nShutdown withdrawn.")
				return nil
			}
		}
	}
}

// ask reads a yes/no answer. Ctrl-C counts as no.
func (f foreground) ask(ctx context.Context, prompt string) (bool, error) {
	fmt.Fprint(f.out, prompt)

	answers := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(f.in).ReadString('\n')
		if err != nil && line == "" {
			errs <- err
			return
		}
		answers <- line
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(f.out)
		return false, nil
	case err := <-errs:
		if err == io.EOF {
			fmt.Fprintln(f.out)
			return false, nil
		}
		return false, fmt.Errorf("read answer: %w", err)
	case line := <-answers:
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}

// formatRemaining renders a countdown as HH:MM:SS, rounding up.
func formatRemaining(d *time.Duration) string {
	if d == nil {
		return "--:--:--"
	}
	secs := int64((*d + time.Second - 1) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}
