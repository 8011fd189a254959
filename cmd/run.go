package cmd

import (
	"context"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Scan once: probe the grid, notify on new openings, save state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			s, err := a.scanner(ctx)
			if err != nil {
				return err
			}
			_, err = s.RunOnce(ctx)
			return err
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Scan repeatedly until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			s, err := a.scanner(ctx)
			if err != nil {
				return err
			}
			a.log.Info("watching", "interval", interval, "venues", len(a.cfg.Venues), "services", len(a.cfg.Services))
			if err := s.Run(ctx, interval); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "time between scans")
	return cmd
}

const maxVIPStartupDelay = 30 * time.Second

func newVIPCmd(opts *rootOptions) *cobra.Command {
	var noDelay bool

	cmd := &cobra.Command{
		Use:   "vip",
		Short: "Scan the configured VIP windows once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, e := range a.cfg.VIP.Invalid {
				a.log.Warn("ignoring VIP window", "err", e)
			}
			if len(a.cfg.VIP.Windows) == 0 {
				a.log.Info("no VIP windows configured", "format", "YYYY-MM-DD,HH:MM,HH:MM,party_sizes", "example", "2025-01-15,18:00,20:00,2,4")
				return nil
			}
			for _, w := range a.cfg.VIP.Windows {
				a.log.Info("VIP window", "window", w.String())
			}

			ctx, cancel := signalContext()
			defer cancel()

			if a.cfg.RandomizeDelay && !noDelay {
				d := rand.N(maxVIPStartupDelay)
				a.log.Info("random startup delay", "delay", d.Round(100*time.Millisecond))
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(d):
				}
			}

			s, err := a.vipScanner(ctx)
			if err != nil {
				return err
			}
			_, err = s.RunOnce(ctx)
			return err
		},
	}

	cmd.Flags().BoolVar(&noDelay, "no-delay", false, "skip the random startup delay")
	return cmd
}
