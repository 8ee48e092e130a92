package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3carbon/internal/chain"
	"github.com/Mohsinsiddi/w3carbon/internal/config"
	"github.com/Mohsinsiddi/w3carbon/internal/session"
	"github.com/Mohsinsiddi/w3carbon/internal/ui"
)

var (
	networkExplorer string
	networkCurrency string
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Manage networks",
}

var networkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known networks and where the contract is deployed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := networkRegistry()
		if err != nil {
			return err
		}
		active, _ := reg.Resolve(cfg.ActiveNetwork())

		t := ui.NewTable([]ui.Column{
			{Title: "", Width: 2},
			{Title: "Name", Width: 16},
			{Title: "Display", Width: 22},
			{Title: "Chain ID", Width: 10},
			{Title: "Currency", Width: 8},
			{Title: "Contract", Width: 14},
		})
		all := reg.All()
		for _, n := range all {
			mark := ""
			if active != nil && active.ChainID == n.ChainID {
				mark = ui.StyleSuccess.Render("●")
			}
			contract := ui.Meta("-")
			if addr, ok := cfg.Deployment(n.ChainID); ok {
				contract = ui.Addr(ui.TruncateAddr(addr))
			}
			t.AddRow(ui.Row{
				mark,
				ui.ChainName(n.Name),
				n.DisplayName,
				strconv.FormatInt(n.ChainID, 10),
				n.NativeCurrency,
				contract,
			})
		}
		fmt.Println(t.Render())
		fmt.Println(ui.Meta(fmt.Sprintf("%d network(s)", len(all))))
		return nil
	},
}

var networkAddCmd = &cobra.Command{
	Use:   "add <name> <chain-id> <rpc-url>",
	Short: "Register a custom EVM network",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid chain id %q", args[1])
		}
		n := chain.Network{
			Name:           args[0],
			ChainID:        id,
			RPCs:           []string{args[2]},
			NativeCurrency: networkCurrency,
			Explorer:       networkExplorer,
		}

		a, err := newApp(false)
		if err != nil {
			return err
		}
		if err := a.wallet.AddChain(cmd.Context(), n); err != nil {
			return err
		}
		cfg.AddNetwork(config.NetworkEntry{
			Name:     n.Name,
			ChainID:  n.ChainID,
			RPCs:     n.RPCs,
			Currency: n.NativeCurrency,
			Explorer: n.Explorer,
		})
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Network %s (chain %d) added.", ui.ChainName(n.Name), id)))
		if _, ok := cfg.Deployment(id); !ok {
			fmt.Println(ui.Hint(fmt.Sprintf("Set its contract with: w3carbon config set-contract %d <address>", id)))
		}
		return nil
	},
}

var networkSwitchCmd = &cobra.Command{
	Use:     "switch [name|chain-id]",
	Aliases: []string{"use"},
	Short:   "Switch the wallet to another network",
	Long: `Switch the active network. A connected session rebinds to the contract
deployed there; without a deployment it stays disconnected until you switch
back. Without an argument, pick from a list.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}

		var target string
		if len(args) == 1 {
			target = args[0]
		} else {
			active, _ := a.registry.Resolve(cfg.ActiveNetwork())
			var items []ui.PickerItem
			for _, n := range a.registry.All() {
				items = append(items, ui.PickerItem{
					Label:    n.Name,
					SubLabel: fmt.Sprintf("chain %d", n.ChainID),
					Value:    n.Name,
					Current:  active != nil && active.ChainID == n.ChainID,
				})
			}
			if target, err = ui.PickItem("Switch network", items); err != nil {
				return err
			}
			if target == "" {
				fmt.Println(ui.Meta("Cancelled."))
				return nil
			}
		}

		n, err := a.registry.Resolve(target)
		if err != nil {
			return fmt.Errorf("unknown network %q, run `w3carbon network list` or add it with `w3carbon network add`", target)
		}

		// Only an approved wallet is asked; otherwise the choice is just saved.
		var s session.Session
		if a.wallet.Authorized() {
			if _, err := a.sessions.Reconnect(cmd.Context()); err != nil {
				log.Debug().Err(err).Msg("reconnect before switch failed")
			}
			if s, err = a.sessions.SwitchNetwork(cmd.Context(), n.ChainID); err != nil {
				return err
			}
		}

		cfg.Network = n.Name
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Active network: %s (chain %d)", ui.ChainName(n.DisplayName), n.ChainID)))
		if a.wallet.Authorized() && !s.Connected() {
			fmt.Println(ui.Warn("No contract deployment on this network; the session is disconnected."))
		}
		return nil
	},
}

func init() {
	networkAddCmd.Flags().StringVar(&networkExplorer, "explorer", "", "block explorer base URL")
	networkAddCmd.Flags().StringVar(&networkCurrency, "currency", "ETH", "native currency symbol")
	networkCmd.AddCommand(networkListCmd, networkAddCmd, networkSwitchCmd)
}
