package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"FXEngine/internal/di"
	"FXEngine/pkg/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	load := func() (*config.Config, error) {
		cfg, err := config.LoadWithEnv(configPath)
		if err != nil {
			return nil, fmt.Errorf("config load failed: %w", err)
		}
		return cfg, nil
	}

	root := &cobra.Command{
		Use:          "fxengine",
		Short:        "Forex signal and risk engine",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd.Context(), load)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the trading loop and the operator API",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runEngine(cmd.Context(), load)
			},
		},
		newSignalsCmd(load),
		newStateCmd(load),
	)
	return root
}

func runEngine(parent context.Context, load func() (*config.Config, error)) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()

	return app.Run(ctx)
}

func newSignalsCmd(load func() (*config.Config, error)) *cobra.Command {
	var pairs []string
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Run one signal scan and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			svc, cleanup, err := di.InitializeSignalService(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if len(pairs) == 0 {
				pairs = cfg.Engine.Pairs
			}
			for i := range pairs {
				pairs[i] = strings.ToUpper(strings.TrimSpace(pairs[i]))
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			set := svc.GenerateAll(ctx, pairs)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(set)
		},
	}
	cmd.Flags().StringSliceVar(&pairs, "pair", nil, "pairs to scan (default: engine.pairs)")
	return cmd
}

func newStateCmd(load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the persisted risk counters",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the current risk state",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				rm, cleanup, err := di.InitializeRiskManager(cfg)
				if err != nil {
					return err
				}
				defer cleanup()

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rm.Snapshot(cmd.Context()))
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Zero the daily counters and pair losses",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				rm, cleanup, err := di.InitializeRiskManager(cfg)
				if err != nil {
					return err
				}
				defer cleanup()

				if err := rm.Reset(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "risk state reset")
				return nil
			},
		},
	)
	return cmd
}
