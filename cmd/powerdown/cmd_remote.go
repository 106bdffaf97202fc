/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/friendsincode/powerdown/internal/api"
	"github.com/friendsincode/powerdown/internal/target"
)

var (
	remoteAddr string
	remoteJSON bool
)

type remoteCall func(ctx context.Context, c *api.Client) (*api.StatusResponse, error)

func remoteCommand(use, short string, call remoteCall) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemote(cmd, call)
		},
	}
}

var statusCmd = remoteCommand("status", "Show the schedule on a running server",
	func(ctx context.Context, c *api.Client) (*api.StatusResponse, error) { return c.Status(ctx) })

var cancelCmd = remoteCommand("cancel", "Cancel the pending shutdown on a running server",
	func(ctx context.Context, c *api.Client) (*api.StatusResponse, error) { return c.Cancel(ctx) })

var confirmCmd = remoteCommand("confirm", "Confirm a short-delay shutdown on a running server",
	func(ctx context.Context, c *api.Client) (*api.StatusResponse, error) { return c.Confirm(ctx) })

var rejectCmd = remoteCommand("reject", "Reject a short-delay shutdown on a running server",
	func(ctx context.Context, c *api.Client) (*api.StatusResponse, error) { return c.Reject(ctx) })

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule a shutdown on a running server",
}

func init() {
	for _, mode := range []target.Kind{target.KindTimeOfDay, target.KindDelay} {
		mode := string(mode)
		scheduleCmd.AddCommand(&cobra.Command{
			Use:   mode + " VALUE",
			Short: "Schedule a shutdown " + mode + " VALUE",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := target.Parse(mode, args[0]); err != nil {
					return err
				}
				return runRemote(cmd, func(ctx context.Context, c *api.Client) (*api.StatusResponse, error) {
					return c.Schedule(ctx, mode, args[0])
				})
			},
		})
	}

	for _, c := range []*cobra.Command{statusCmd, cancelCmd, confirmCmd, rejectCmd, scheduleCmd} {
		c.PersistentFlags().StringVar(&remoteAddr, "addr", "", "Server URL (default from POWERDOWN_API_URL)")
		c.PersistentFlags().BoolVar(&remoteJSON, "json", false, "Print the raw JSON status")
		rootCmd.AddCommand(c)
	}
}

func runRemote(cmd *cobra.Command, call remoteCall) error {
	if err := loadConfig(); err != nil {
		return err
	}
	addr := remoteAddr
	if addr == "" {
		addr = cfg.APIURL
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	st, err := call(ctx, api.NewClient(addr))
	if err != nil {
		return err
	}

	if remoteJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	renderStatus(cmd.OutOrStdout(), st)
	return nil
}

// renderStatus prints a status as a two-column table.
func renderStatus(w io.Writer, st *api.StatusResponse) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Field", "Value"})

	t.AppendRow(table.Row{"State", st.State})
	if st.ScheduleID != "" {
		t.AppendRow(table.Row{"Schedule", st.ScheduleID})
		t.AppendRow(table.Row{"Target", st.Target})
	}
	if st.FireAt != nil {
		t.AppendRow(table.Row{"Fires at", st.FireAt.Local().Format("2006-01-02 15:04:05")})
	}
	if st.RemainingSeconds != nil {
		d := time.Duration(*st.RemainingSeconds) * time.Second
		t.AppendRow(table.Row{"Remaining", formatRemaining(&d)})
	}
	if st.ScheduleID != "" {
		t.AppendRow(table.Row{"Confirmed", st.Confirmed})
	}
	if st.Error != "" {
		t.AppendRow(table.Row{"Error", st.Error})
	}

	t.Render()
}
