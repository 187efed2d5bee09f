package main

import (
	"fmt"

	"pumpfun-dashboard-go/internal/models"
	"pumpfun-dashboard-go/internal/reporter"

	"github.com/spf13/cobra"
)

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage tracked wallets",
	}
	cmd.AddCommand(walletAddCmd())
	cmd.AddCommand(walletCreateCmd())
	cmd.AddCommand(walletRemoveCmd())
	cmd.AddCommand(walletListCmd())
	return cmd
}

func walletAddCmd() *cobra.Command {
	var w models.Wallet
	var dev bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Import an existing wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDashboard()
			if err != nil {
				return err
			}
			defer closeDashboard(d)

			var added models.Wallet
			if dev {
				added, err = d.Wallets().SetDevWallet(w)
			} else {
				added, err = d.AddWallet(w)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", added.Name, added.Address)
			return nil
		},
	}
	cmd.Flags().StringVar(&w.Address, "address", "", "wallet public key")
	cmd.Flags().StringVar(&w.PrivateKey, "private-key", "", "base58 private key")
	cmd.Flags().StringVar(&w.APIKey, "api-key", "", "trade API key")
	cmd.Flags().StringVar(&w.Name, "name", "", "display name")
	cmd.Flags().BoolVar(&dev, "dev", false, "set as the dev wallet")
	cmd.MarkFlagRequired("address")
	cmd.MarkFlagRequired("private-key")
	cmd.MarkFlagRequired("api-key")
	return cmd
}

func walletCreateCmd() *cobra.Command {
	var dev bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new wallet through the trade API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDashboard()
			if err != nil {
				return err
			}
			defer closeDashboard(d)
			w, err := d.CreateWallet(cmd.Context(), dev)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", w.Name, w.Address)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dev, "dev", false, "create the dev wallet")
	return cmd
}

func walletRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <address>",
		Short: "Stop tracking a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDashboard()
			if err != nil {
				return err
			}
			defer closeDashboard(d)
			return d.RemoveWallet(args[0])
		},
	}
}

func walletListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List wallets with their trading presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDashboard()
			if err != nil {
				return err
			}
			defer closeDashboard(d)
			reporter.WriteWalletList(cmd.OutOrStdout(), d.Wallets().All(), d.Wallets().AllSettings())
			return nil
		},
	}
}
