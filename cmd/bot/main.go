package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pumpfun-dashboard-go/internal/backup"
	"pumpfun-dashboard-go/internal/bot"
	"pumpfun-dashboard-go/internal/config"
	"pumpfun-dashboard-go/internal/logger"
	"pumpfun-dashboard-go/internal/models"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	dryRun     bool
	cfg        *models.Config
)

func main() {
	err := newRootCmd().Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pumpdash",
		Short: "Multi-wallet pump.fun trading dashboard",
		Long: `pumpdash tracks a set of Solana wallets on pump.fun, reconciles their
positions from the live trade feed and runs automated buys, sells and
mass token launches.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the config file (json or yaml)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "send orders to the paper exchange")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(trackCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(launchCmd())
	rootCmd.AddCommand(walletCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(autoBuyCmd())
	rootCmd.AddCommand(autoSellCmd())
	return rootCmd
}

// setup loads .env and the config, then rebuilds the logger from it.
func setup(cmd *cobra.Command, args []string) error {
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Debug("No .env file found, reading the process environment")
	} else {
		logger.S().Info("Loaded environment from .env")
	}

	loaded, err := config.LoadConfig(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.S().Infof("Config file %s not found, using defaults", configPath)
		loaded = config.Default()
		config.ApplyEnv(loaded)
	case err != nil:
		return fmt.Errorf("load config: %w", err)
	}
	if dryRun {
		loaded.DryRun = true
	}
	cfg = loaded

	logger.InitLogger(cfg.LogConfig)
	return nil
}

// openDashboard opens the dashboard and loads its persisted state.
func openDashboard() (*bot.Dashboard, error) {
	d, err := bot.Open(cfg, logger.L())
	if err != nil {
		return nil, err
	}
	if err := d.Load(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func closeDashboard(d *bot.Dashboard) {
	if err := d.Close(); err != nil {
		logger.L().Error("Failed to close dashboard", zap.Error(err))
	}
}

// runUntilSignal starts d, reads console commands from stdin and blocks
// until SIGINT or SIGTERM.
func runUntilSignal(d *bot.Dashboard) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		return err
	}
	go runConsole(ctx, d, os.Stdin, os.Stdout)
	<-ctx.Done()
	logger.L().Info("Shutting down")
	d.Stop()
	return nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the feed and run the dashboard until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDashboard()
			if err != nil {
				return err
			}
			defer closeDashboard(d)
			return runUntilSignal(d)
		},
	}
}

func trackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "track <mint>",
		Short: "Track a token by mint address and run the dashboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDashboard()
			if err != nil {
				return err
			}
			defer closeDashboard(d)
			if err := d.TrackToken(args[0]); err != nil {
				return err
			}
			return runUntilSignal(d)
		},
	}
}

func reportCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print wallets, portfolio and the order journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDashboard()
			if err != nil {
				return err
			}
			defer closeDashboard(d)
			if !offline {
				ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.HTTPClientTimeoutSec)*time.Second)
				d.RefreshBalances(ctx)
				cancel()
			}
			return d.Report(cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the balance refresh")
	return cmd
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [path]",
		Short: "Write wallets and automation settings to a JSON export",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := backup.FileName(time.Now())
			if len(args) > 0 {
				path = args[0]
			}
			d, err := openDashboard()
			if err != nil {
				return err
			}
			defer closeDashboard(d)
			doc, err := d.Export(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d wallets to %s\n", doc.WalletsCount, path)
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Replace wallets and automation settings from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDashboard()
			if err != nil {
				return err
			}
			defer closeDashboard(d)
			doc, err := d.Import(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d wallets exported on %s\n",
				doc.WalletsCount, doc.ExportDate.Format("2006-01-02 15:04"))
			return nil
		},
	}
}
