package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacobschulman/stonewatch/internal/state"
)

func newStateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset persisted slot state",
	}
	cmd.AddCommand(newStateShowCmd(opts))
	cmd.AddCommand(newStateResetCmd(opts))
	return cmd
}

func stateTarget(a *app, vip bool) (string, time.Duration) {
	if vip {
		return a.cfg.VIPStateKey(), a.cfg.VIP.TTL
	}
	return a.cfg.State.Key, a.cfg.State.TTL
}

func newStateShowCmd(opts *rootOptions) *cobra.Command {
	var vip bool

	c := &cobra.Command{
		Use:   "show",
		Short: "Print stored slot state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			key, ttl := stateTarget(a, vip)
			repo, err := a.openRepository(ctx, key, ttl)
			if err != nil {
				return err
			}
			snap, err := repo.Load(ctx, time.Now())
			if err != nil {
				return err
			}

			loc := a.cfg.Venue().Location
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tPRESENT\tLAST SEEN\tLAST NOTIFIED\tMILESTONE")
			for _, row := range stateRows(snap, loc) {
				fmt.Fprintln(tw, row)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d entries in %s (%s)\n", len(snap), key, repo.Backend())
			return nil
		},
	}

	c.Flags().BoolVar(&vip, "vip", false, "show the VIP watcher state instead")
	return c
}

func stateRows(snap state.Snapshot, loc *time.Location) []string {
	rows := make([]string, 0, len(snap))
	for k, st := range snap {
		milestone := "-"
		if st.LastMilestone != nil {
			milestone = strconv.Itoa(*st.LastMilestone)
		}
		rows = append(rows, fmt.Sprintf("%s\t%t\t%s\t%s\t%s",
			k.String(), st.Present, formatUnix(st.LastSeen, loc), formatUnix(st.LastNotified, loc), milestone))
	}
	sort.Strings(rows)
	return rows
}

func formatUnix(ts int64, loc *time.Location) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).In(loc).Format("2006-01-02 15:04")
}

func newStateResetCmd(opts *rootOptions) *cobra.Command {
	var (
		vip bool
		yes bool
	)

	c := &cobra.Command{
		Use:   "reset",
		Short: "Clear stored slot state so every open slot notifies again",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset state without --yes")
			}
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			key, ttl := stateTarget(a, vip)
			repo, err := a.openRepository(ctx, key, ttl)
			if err != nil {
				return err
			}
			if err := repo.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state %s reset (%s)\n", key, repo.Backend())
			return nil
		},
	}

	c.Flags().BoolVar(&vip, "vip", false, "reset the VIP watcher state instead")
	c.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return c
}
