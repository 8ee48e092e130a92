package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3carbon/internal/chain"
	"github.com/Mohsinsiddi/w3carbon/internal/config"
	"github.com/Mohsinsiddi/w3carbon/internal/ens"
	"github.com/Mohsinsiddi/w3carbon/internal/ui"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect the active wallet to the marketplace",
	Long: `Ask the active wallet for its account and bind the contract deployed on
the active network. The approval is remembered, so later commands reconnect
silently until 'w3carbon disconnect'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		s, err := a.sessions.Connect(cmd.Context())
		if err != nil {
			return err
		}
		cfg.Connected = true
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.SessionBlock(s, a.network(s.ChainID)))
		if s.ReadOnly() {
			fmt.Println(ui.Warn("Watch-only wallet: you can browse, but not mint, buy, list or retire."))
		}
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the wallet approval",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		a.wallet.Revoke()
		a.sessions.Disconnect()
		cfg.Connected = false
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success("Disconnected."))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the wallet, network and contract in use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), config.QueryTimeout)
		defer cancel()

		s, err := a.sessions.Reconnect(ctx)
		network := a.network(s.ChainID)
		if s.ChainID == 0 {
			if id, idErr := a.wallet.ChainID(ctx); idErr == nil {
				s.ChainID = id
				network = a.network(id)
			}
		}
		fmt.Println(ui.SessionBlock(s, network))
		if err != nil {
			return err
		}
		if !s.Connected() {
			fmt.Println(ui.Hint("Connect with: w3carbon connect"))
			return nil
		}

		var pairs [][2]string
		if b, err := a.wallet.Backend(ctx); err == nil {
			if name, err := ens.NewResolver(b).Lookup(ctx, s.Account); err == nil {
				pairs = append(pairs, [2]string{"ENS name", name})
			}
		}
		if bal, err := a.wallet.Balance(ctx, s.Account); err == nil {
			symbol := "ETH"
			if network != nil {
				symbol = network.NativeCurrency
			}
			pairs = append(pairs, [2]string{"Balance", chain.FormatEther(bal) + " " + symbol})
		}
		if ok, err := s.Contract.IsVerifier(ctx, s.Account); err == nil {
			pairs = append(pairs, [2]string{"Verifier", fmt.Sprint(ok)})
		}
		if n, err := s.Contract.BalanceOf(ctx, s.Account); err == nil {
			pairs = append(pairs, [2]string{"Credits held", n.String()})
		}
		if len(pairs) > 0 {
			fmt.Println(ui.KeyValueBlock("Account", pairs))
		}
		return nil
	},
}
