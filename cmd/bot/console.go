package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pumpfun-dashboard-go/internal/bot"
	"pumpfun-dashboard-go/internal/models"
	"pumpfun-dashboard-go/internal/reporter"

	"github.com/spf13/cobra"
)

// runConsole executes one console command per input line until ctx ends or
// the input is closed.
func runConsole(ctx context.Context, d *bot.Dashboard, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		// A fresh tree per line so flag values do not leak between commands.
		cmd := consoleCmd(d)
		cmd.SetArgs(args)
		cmd.SetOut(out)
		cmd.SetErr(out)
		if err := cmd.ExecuteContext(ctx); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

// consoleCmd is the command tree accepted while the dashboard runs.
func consoleCmd(d *bot.Dashboard) *cobra.Command {
	root := &cobra.Command{
		Use:           "pumpdash>",
		Short:         "Dashboard console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(consoleBuyCmd(d))
	root.AddCommand(consoleSellCmd(d))
	root.AddCommand(&cobra.Command{
		Use:   "nuke <percent>",
		Short: "Sell a percentage of every open position in the active token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pct, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid percent %q", args[0])
			}
			entries, err := d.Nuke(cmd.Context(), pct)
			if err != nil {
				return err
			}
			for _, e := range entries {
				printEntry(cmd.OutOrStdout(), e)
			}
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "track <mint>",
		Short: "Track a token by mint address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return d.TrackToken(args[0])
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Stop the monitors and forget the active token",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			d.ClearToken()
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the status report",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			reporter.WriteStatus(cmd.OutOrStdout(), d.Status())
		},
	})
	return root
}

func consoleBuyCmd(d *bot.Dashboard) *cobra.Command {
	var preset int
	cmd := &cobra.Command{
		Use:   "buy <wallet> [amount]",
		Short: "Buy the active token with a SOL amount or a wallet preset",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := d.ResolveWallet(args[0])
			if err != nil {
				return err
			}
			var entry models.TransactionQueueEntry
			switch {
			case len(args) == 2:
				amount, perr := strconv.ParseFloat(args[1], 64)
				if perr != nil {
					return fmt.Errorf("invalid amount %q", args[1])
				}
				entry, err = d.Buy(cmd.Context(), w.Address, amount)
			case preset > 0:
				entry, err = d.BuyPreset(cmd.Context(), w.Address, preset-1)
			default:
				return fmt.Errorf("give an amount or --preset")
			}
			if err != nil {
				return err
			}
			printEntry(cmd.OutOrStdout(), entry)
			return nil
		},
	}
	cmd.Flags().IntVarP(&preset, "preset", "p", 0, "buy preset number (1-based)")
	return cmd
}

func consoleSellCmd(d *bot.Dashboard) *cobra.Command {
	var preset int
	cmd := &cobra.Command{
		Use:   "sell <wallet> [percent]",
		Short: "Sell a percentage of a wallet's position or a wallet preset",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := d.ResolveWallet(args[0])
			if err != nil {
				return err
			}
			var entry models.TransactionQueueEntry
			switch {
			case len(args) == 2:
				pct, perr := strconv.ParseFloat(args[1], 64)
				if perr != nil {
					return fmt.Errorf("invalid percent %q", args[1])
				}
				entry, err = d.Sell(cmd.Context(), w.Address, pct)
			case preset > 0:
				entry, err = d.SellPreset(cmd.Context(), w.Address, preset-1)
			default:
				return fmt.Errorf("give a percent or --preset")
			}
			if err != nil {
				return err
			}
			printEntry(cmd.OutOrStdout(), entry)
			return nil
		},
	}
	cmd.Flags().IntVarP(&preset, "preset", "p", 0, "sell preset number (1-based)")
	return cmd
}

func printEntry(out io.Writer, e models.TransactionQueueEntry) {
	if e.Status == models.StatusSuccess {
		fmt.Fprintf(out, "%s %s %s: %s\n", e.Action, e.WalletName, e.Status, e.Signature)
		return
	}
	fmt.Fprintf(out, "%s %s %s: %s\n", e.Action, e.WalletName, e.Status, e.Error)
}
