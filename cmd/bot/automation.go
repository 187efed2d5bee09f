package main

import (
	"fmt"
	"strconv"

	"pumpfun-dashboard-go/internal/bot"
	"pumpfun-dashboard-go/internal/models"

	"github.com/spf13/cobra"
)

// withDashboard opens the dashboard around fn.
func withDashboard(fn func(cmd *cobra.Command, args []string, d *bot.Dashboard) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		d, err := openDashboard()
		if err != nil {
			return err
		}
		defer closeDashboard(d)
		return fn(cmd, args, d)
	}
}

// toggleCmds builds the "enable" and "disable" subcommands of a feature.
func toggleCmds(feature string, set func(d *bot.Dashboard, on bool) error) []*cobra.Command {
	build := func(use, short string, on bool) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: withDashboard(func(cmd *cobra.Command, args []string, d *bot.Dashboard) error {
				return set(d, on)
			}),
		}
	}
	return []*cobra.Command{
		build("enable", "Turn on "+feature, true),
		build("disable", "Turn off "+feature, false),
	}
}

func parseIndex(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid number %q (counting from 1)", arg)
	}
	return n - 1, nil
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Edit per-wallet trading presets",
	}
	var preset int
	set := &cobra.Command{
		Use:   "set <wallet> <field> <value>",
		Short: "Set buy, sell, buySlippage, sellSlippage or priorityFee",
		Long: `Set one trading setting of a wallet. The buy and sell fields are preset
lists and take --preset to pick the entry.`,
		Args: cobra.ExactArgs(3),
		RunE: withDashboard(func(cmd *cobra.Command, args []string, d *bot.Dashboard) error {
			w, err := d.ResolveWallet(args[0])
			if err != nil {
				return err
			}
			value, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q", args[2])
			}
			if err := d.Wallets().UpdateSetting(w.Address, args[1], preset-1, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s updated\n", w.Name, args[1])
			return nil
		}),
	}
	set.Flags().IntVarP(&preset, "preset", "p", 1, "preset number for buy/sell (1-based)")
	cmd.AddCommand(set)
	return cmd
}

func autoBuyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autobuy",
		Short: "Configure buys fired when the dev wallet creates a token",
	}
	cmd.AddCommand(toggleCmds("auto-buy", func(d *bot.Dashboard, on bool) error {
		return d.Engine().SetAutoBuyEnabled(on)
	})...)

	var entry models.AutoBuyEntry
	add := &cobra.Command{
		Use:   "add <wallet> <amount>",
		Short: "Append a buy to the sequence",
		Args:  cobra.ExactArgs(2),
		RunE: withDashboard(func(cmd *cobra.Command, args []string, d *bot.Dashboard) error {
			w, err := d.ResolveWallet(args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("invalid amount %q", args[1])
			}
			entry.WalletAddress = w.Address
			entry.Amount = amount
			return d.Engine().AddAutoBuyEntry(entry)
		}),
	}
	add.Flags().Int64Var(&entry.DelayMs, "delay", 0, "delay before this buy in milliseconds")
	add.Flags().Float64Var(&entry.Slippage, "slippage", 0, "slippage percent (engine default when unset)")
	add.Flags().Float64Var(&entry.PriorityFee, "priority-fee", 0, "priority fee in SOL (engine default when unset)")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <n>",
		Short: "Remove the n-th buy of the sequence",
		Args:  cobra.ExactArgs(1),
		RunE: withDashboard(func(cmd *cobra.Command, args []string, d *bot.Dashboard) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return d.Engine().RemoveAutoBuyEntry(i)
		}),
	})
	return cmd
}

func autoSellCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autosell",
		Short: "Configure auto-sell triggers",
	}
	cmd.AddCommand(toggleCmds("auto-sell", func(d *bot.Dashboard, on bool) error {
		return d.Engine().SetAutoSellEnabled(on)
	})...)

	var slippage float64
	wallet := &cobra.Command{
		Use:       "wallet <wallet> on|off",
		Short:     "Turn auto-sell on or off for one wallet",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: withDashboard(func(cmd *cobra.Command, args []string, d *bot.Dashboard) error {
			w, err := d.ResolveWallet(args[0])
			if err != nil {
				return err
			}
			if args[1] != "on" && args[1] != "off" {
				return fmt.Errorf("expected on or off, got %q", args[1])
			}
			if err := d.Engine().SetWalletAutoSell(w.Address, args[1] == "on"); err != nil {
				return err
			}
			if slippage > 0 {
				return d.Engine().SetWalletAutoSellSlippage(w.Address, slippage)
			}
			return nil
		}),
	}
	wallet.Flags().Float64Var(&slippage, "slippage", 0, "slippage percent for trigger sells")
	cmd.AddCommand(wallet)
	cmd.AddCommand(triggerCmd())
	return cmd
}

func triggerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Edit a wallet's sell triggers",
	}

	var typ string
	var value, percent float64
	add := &cobra.Command{
		Use:   "add <wallet>",
		Short: "Append a trigger (time, profit, marketcap or devSell)",
		Args:  cobra.ExactArgs(1),
		RunE: withDashboard(func(cmd *cobra.Command, args []string, d *bot.Dashboard) error {
			w, err := d.ResolveWallet(args[0])
			if err != nil {
				return err
			}
			if err := checkTriggerFlags(cmd, models.TriggerType(typ), value, percent); err != nil {
				return err
			}
			engine := d.Engine()
			if err := engine.AddTrigger(w.Address); err != nil {
				return err
			}
			i := len(engine.Config().AutoSell.Wallets[w.Address].Triggers) - 1
			if cmd.Flags().Changed("type") {
				if err := engine.SetTriggerType(w.Address, i, models.TriggerType(typ)); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("value") {
				if err := engine.SetTriggerValue(w.Address, i, value); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("percent") {
				if err := engine.SetTriggerSellPercent(w.Address, i, percent); err != nil {
					return err
				}
			}
			t := engine.Config().AutoSell.Wallets[w.Address].Triggers[i]
			fmt.Fprintf(cmd.OutOrStdout(), "%s trigger #%d: %s %g, sell %g%%\n", w.Name, i+1, t.Type, t.Value, t.SellPercent)
			return nil
		}),
	}
	add.Flags().StringVar(&typ, "type", string(models.TriggerTime), "trigger type")
	add.Flags().Float64Var(&value, "value", 0, "threshold (seconds, multiplier or USD)")
	add.Flags().Float64Var(&percent, "percent", 0, "percent of the position to sell")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <wallet> <n>",
		Short: "Remove a wallet's n-th trigger",
		Args:  cobra.ExactArgs(2),
		RunE: withDashboard(func(cmd *cobra.Command, args []string, d *bot.Dashboard) error {
			w, err := d.ResolveWallet(args[0])
			if err != nil {
				return err
			}
			i, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return d.Engine().RemoveTrigger(w.Address, i)
		}),
	})
	return cmd
}

// checkTriggerFlags rejects bad flags before a trigger is appended.
func checkTriggerFlags(cmd *cobra.Command, typ models.TriggerType, value, percent float64) error {
	if cmd.Flags().Changed("type") {
		switch typ {
		case models.TriggerTime, models.TriggerProfit, models.TriggerMarketCap, models.TriggerDevSell:
		default:
			return fmt.Errorf("unknown trigger type %q", typ)
		}
	}
	if cmd.Flags().Changed("value") && value <= 0 {
		return fmt.Errorf("trigger value must be positive")
	}
	if cmd.Flags().Changed("percent") && (percent <= 0 || percent > 100) {
		return fmt.Errorf("sell percent must be in (0, 100]")
	}
	return nil
}

func launchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Configure and run mass token launches",
	}
	cmd.AddCommand(toggleCmds("launching when the dev wallet creates a token", func(d *bot.Dashboard, on bool) error {
		return d.Launcher().SetEnabled(on)
	})...)

	var spec models.LaunchSpec
	add := &cobra.Command{
		Use:   "add <wallet>",
		Short: "Queue a token launch from a tracked wallet",
		Args:  cobra.ExactArgs(1),
		RunE: withDashboard(func(cmd *cobra.Command, args []string, d *bot.Dashboard) error {
			w, err := d.ResolveWallet(args[0])
			if err != nil {
				return err
			}
			spec.WalletName = w.Name
			spec.WalletAddress = w.Address
			spec.PrivateKey = w.PrivateKey
			spec.APIKey = w.APIKey
			return d.Launcher().AddLaunch(spec)
		}),
	}
	add.Flags().StringVar(&spec.TokenName, "name", "", "token name")
	add.Flags().StringVar(&spec.Symbol, "symbol", "", "token symbol")
	add.Flags().StringVar(&spec.Description, "description", "", "token description")
	add.Flags().StringVar(&spec.ImageURL, "image", "", "token image URL")
	add.Flags().StringVar(&spec.SocialLinks.Twitter, "twitter", "", "twitter link")
	add.Flags().StringVar(&spec.SocialLinks.Telegram, "telegram", "", "telegram link")
	add.Flags().StringVar(&spec.SocialLinks.Website, "website", "", "website link")
	add.Flags().Float64Var(&spec.InitialBuy, "initial-buy", 0, "dev buy in SOL")
	add.Flags().Int64Var(&spec.DelayMs, "delay", 0, "delay before this launch in milliseconds")
	add.Flags().Float64Var(&spec.SellAfterSeconds, "sell-after", 60, "seconds until the scheduled sell")
	add.Flags().Float64Var(&spec.SellPercent, "sell-percent", 100, "percent sold when the timer fires")
	add.MarkFlagRequired("name")
	add.MarkFlagRequired("symbol")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <n>",
		Short: "Remove the n-th queued launch",
		Args:  cobra.ExactArgs(1),
		RunE: withDashboard(func(cmd *cobra.Command, args []string, d *bot.Dashboard) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return d.Launcher().RemoveLaunch(i)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "now",
		Short: "Run the queued launches immediately",
		Args:  cobra.NoArgs,
		RunE: withDashboard(func(cmd *cobra.Command, args []string, d *bot.Dashboard) error {
			outcomes, err := d.LaunchNow(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, o := range outcomes {
				switch {
				case o.Skipped != "":
					fmt.Fprintf(out, "#%d %s skipped: %s\n", o.Index+1, o.Symbol, o.Skipped)
				case o.Err != nil:
					fmt.Fprintf(out, "#%d %s failed: %v\n", o.Index+1, o.Symbol, o.Err)
				case !o.Result.Success:
					fmt.Fprintf(out, "#%d %s rejected: %s\n", o.Index+1, o.Symbol, o.Result.Error)
				default:
					fmt.Fprintf(out, "#%d %s launched: %s\n", o.Index+1, o.Symbol, o.Result.Mint)
				}
			}
			return nil
		}),
	})
	return cmd
}
