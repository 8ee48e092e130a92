package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3carbon/internal/ui"
	"github.com/Mohsinsiddi/w3carbon/internal/wallet"
)

var walletKeyFlag string

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage wallets",
}

var walletAddCmd = &cobra.Command{
	Use:   "add <name> [address]",
	Short: "Add a wallet",
	Long: `Add a signing wallet (--key, stored in the OS keychain) or a watch-only
wallet (address only). Watch-only wallets connect read-only.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		mgr := newWalletManager()

		if walletKeyFlag != "" {
			w, err := mgr.AddWithKey(name, walletKeyFlag)
			if err != nil {
				return err
			}
			fmt.Println(ui.Success(fmt.Sprintf("Signing wallet %q added: %s", name, ui.Addr(w.Address))))
		} else {
			if len(args) < 2 {
				return fmt.Errorf("address required for watch-only wallet\n  Usage: w3carbon wallet add <name> <address>\n  Or for signing: w3carbon wallet add <name> --key <private-key>")
			}
			w, err := mgr.AddWatchOnly(name, args[1])
			if err != nil {
				return err
			}
			fmt.Println(ui.Success(fmt.Sprintf("Watch-only wallet %q added: %s", name, ui.Addr(w.Address))))
		}
		if cfg.DefaultWallet == "" {
			return useWallet(mgr, name)
		}
		fmt.Println(ui.Hint(fmt.Sprintf("Set as default with: w3carbon wallet use %s", name)))
		return nil
	},
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all wallets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := newWalletManager()
		wallets := mgr.List()

		if len(wallets) == 0 {
			fmt.Println(ui.Info("No wallets configured yet."))
			fmt.Println(ui.Hint("Add one with: w3carbon wallet add myWallet --key <private-key>"))
			return nil
		}

		t := ui.NewTable([]ui.Column{
			{Title: "Name", Width: 16},
			{Title: "Address", Width: 44},
			{Title: "Type", Width: 12},
			{Title: "Unlocked", Width: 8},
			{Title: "Default", Width: 8},
		})

		for _, w := range wallets {
			def, unlocked := "", ""
			if w.IsDefault {
				def = ui.StyleSuccess.Render("✓")
			}
			if w.CanSign() && wallet.IsUnlocked(w.Name) {
				unlocked = ui.StyleSuccess.Render("✓")
			}
			t.AddRow(ui.Row{
				ui.Val(w.Name),
				ui.Addr(w.Address),
				ui.Meta(walletTypeLabel(w.Type)),
				unlocked,
				def,
			})
		}
		fmt.Println(t.Render())
		fmt.Println(ui.Meta(fmt.Sprintf("%d wallet(s) configured", len(wallets))))
		return nil
	},
}

var walletRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a wallet and its stored key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !assumeYes && !ui.ConfirmDanger(fmt.Sprintf("Remove wallet %q?", name)) {
			fmt.Println(ui.Meta("Cancelled."))
			return nil
		}
		mgr := newWalletManager()
		if err := mgr.Remove(name); err != nil {
			return err
		}
		if cfg.DefaultWallet == name {
			cfg.DefaultWallet = ""
			if err := cfg.Save(); err != nil {
				return err
			}
		}
		fmt.Println(ui.Success(fmt.Sprintf("Wallet %q removed.", name)))
		return nil
	},
}

var walletUseCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Set the default wallet",
	Long: `Set the wallet used by connect and every transaction. A connected
session switches to it on the next command. Without a name, pick from a list.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := newWalletManager()
		if len(args) == 1 {
			return useWallet(mgr, args[0])
		}

		var items []ui.PickerItem
		for _, w := range mgr.List() {
			items = append(items, ui.PickerItem{
				Label:    w.Name,
				SubLabel: ui.TruncateAddr(w.Address) + "  " + walletTypeLabel(w.Type),
				Value:    w.Name,
				Current:  w.IsDefault,
			})
		}
		picked, err := ui.PickItem("Default wallet", items)
		if err != nil {
			return err
		}
		if picked == "" {
			fmt.Println(ui.Meta("Cancelled."))
			return nil
		}
		return useWallet(mgr, picked)
	},
}

func useWallet(mgr *wallet.Manager, name string) error {
	if err := mgr.SetDefault(name); err != nil {
		return err
	}
	cfg.DefaultWallet = name
	if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Println(ui.Success(fmt.Sprintf("Default wallet set to %q.", name)))
	return nil
}

var walletGenerateCmd = &cobra.Command{
	Use:   "generate <name>",
	Short: "Generate a new EVM wallet",
	Long: `Generate a brand-new EVM keypair and store the private key in the OS keychain.

The private key is displayed ONCE immediately after creation.
Copy it and store it in a password manager. If you lose it, the wallet is gone.

Re-export later with: w3carbon wallet export <name>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		mgr := newWalletManager()
		w, err := mgr.Generate(name)
		if err != nil {
			return err
		}
		hexKey, err := mgr.ExportKey(name)
		if err != nil {
			return err
		}

		fmt.Println()
		fmt.Printf("  %s  %s\n", ui.Meta("Wallet :"), ui.Val(w.Name))
		fmt.Printf("  %s  %s\n\n", ui.Meta("Address:"), ui.Addr(w.Address))

		fmt.Println(ui.DangerBox(
			ui.Warn("SAVE YOUR PRIVATE KEY. It is shown only once. Never share it.") + "\n\n" +
				ui.Val(hexKey) + "\n\n" +
				ui.Hint("Store it in a password manager."),
		))
		fmt.Println(ui.Hint("  Re-export anytime: w3carbon wallet export " + name))
		fmt.Println()
		return nil
	},
}

var walletExportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Re-export the private key of a signing wallet",
	Long: `Retrieve and display the stored private key for a signing wallet.

You must type the wallet name exactly to confirm before the key is shown.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		fmt.Println()
		fmt.Println(ui.Warn("  You are about to reveal a private key. Keep it secret."))
		fmt.Println()
		p := ui.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
		if p.Input(fmt.Sprintf("  Type wallet name %q to confirm", name), "") != name {
			fmt.Println()
			fmt.Println(ui.Err("  Name mismatch, export cancelled."))
			return nil
		}

		hexKey, err := newWalletManager().ExportKey(name)
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Println(ui.DangerBox(
			ui.Warn("PRIVATE KEY. Do not share this with anyone.") + "\n\n" + ui.Val(hexKey),
		))
		fmt.Println()
		return nil
	},
}

var walletUnlockAll bool

var walletUnlockCmd = &cobra.Command{
	Use:   "unlock [name]",
	Short: "Cache wallet key(s) for the session (skips future keychain prompts)",
	Long: `Retrieve private keys from the OS keychain once and cache them in a
restricted session file so later commands sign without a prompt.

  w3carbon wallet unlock          # pick a wallet
  w3carbon wallet unlock alice
  w3carbon wallet unlock --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := newWalletManager()
		ks := mgr.KeyStore()

		var signing []*wallet.Wallet
		for _, w := range mgr.List() {
			if w.CanSign() {
				signing = append(signing, w)
			}
		}
		if len(signing) == 0 {
			fmt.Println(ui.Info("No signing wallets found."))
			fmt.Println(ui.Hint("Add one with: w3carbon wallet add <name> --key <private-key>"))
			return nil
		}

		var names []string
		switch {
		case walletUnlockAll:
			for _, w := range signing {
				names = append(names, w.Name)
			}
		case len(args) > 0:
			names = []string{args[0]}
		default:
			items := make([]ui.PickerItem, len(signing))
			for i, w := range signing {
				sub := ui.TruncateAddr(w.Address)
				if wallet.IsUnlocked(w.Name) {
					sub += "  " + ui.Meta("[cached]")
				}
				items[i] = ui.PickerItem{Label: w.Name, SubLabel: sub, Value: w.Name}
			}
			picked, err := ui.PickItem("Unlock Wallet  ·  select to cache key", items)
			if err != nil {
				return err
			}
			if picked == "" {
				fmt.Println(ui.Meta("Cancelled."))
				return nil
			}
			names = []string{picked}
		}

		fmt.Println(ui.Info("Your OS keychain may prompt once per wallet being unlocked."))
		fmt.Println()

		var unlocked, skipped int
		for _, name := range names {
			if wallet.IsUnlocked(name) {
				fmt.Println(ui.Meta(fmt.Sprintf("  %-20s already cached", name)))
				skipped++
				continue
			}
			w, err := mgr.Get(name)
			if err != nil {
				fmt.Println(ui.Err(fmt.Sprintf("  %-20s %v", name, err)))
				continue
			}
			hexKey, err := ks.Retrieve(w.KeyRef)
			if err == nil {
				err = wallet.PutSessionKey(w.KeyRef, hexKey)
			}
			if err != nil {
				fmt.Println(ui.Err(fmt.Sprintf("  %-20s %v", name, err)))
				continue
			}
			fmt.Println(ui.Success(fmt.Sprintf("  %-20s unlocked", name)))
			unlocked++
		}

		fmt.Println()
		if unlocked > 0 {
			fmt.Println(ui.Success(fmt.Sprintf("%d wallet(s) cached until 'w3carbon wallet lock'.", unlocked)))
		}
		if skipped > 0 {
			fmt.Println(ui.Meta(fmt.Sprintf("  %d already cached, skipped.", skipped)))
		}
		return nil
	},
}

var walletLockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Clear the session cache (re-enables keychain prompts)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !wallet.SessionActive() {
			fmt.Println(ui.Meta("No active session, nothing to clear."))
			return nil
		}
		if err := wallet.ClearSession(); err != nil {
			return fmt.Errorf("clearing session: %w", err)
		}
		fmt.Println(ui.Success("Session cleared. Keychain will be used on next access."))
		return nil
	},
}

func init() {
	walletAddCmd.Flags().StringVar(&walletKeyFlag, "key", "", "private key for signing wallet (stored in OS keychain)")
	walletUnlockCmd.Flags().BoolVar(&walletUnlockAll, "all", false, "unlock all signing wallets")
	walletCmd.AddCommand(walletAddCmd, walletListCmd, walletRemoveCmd, walletUseCmd,
		walletGenerateCmd, walletExportCmd, walletUnlockCmd, walletLockCmd,
		walletSignCmd, walletVerifyCmd)
}

// walletTypeLabel converts an internal wallet type to a user-friendly label.
func walletTypeLabel(t string) string {
	switch t {
	case wallet.TypeSigning:
		return "read-write"
	default:
		return t
	}
}
