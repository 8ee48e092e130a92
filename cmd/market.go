package cmd

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3carbon/internal/config"
	"github.com/Mohsinsiddi/w3carbon/internal/ens"
	"github.com/Mohsinsiddi/w3carbon/internal/errs"
	"github.com/Mohsinsiddi/w3carbon/internal/market"
	"github.com/Mohsinsiddi/w3carbon/internal/ui"
)

var marketCmd = &cobra.Command{
	Use:     "market",
	Aliases: []string{"ls"},
	Short:   "List credits for sale",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, func(ctx context.Context, a *app) error {
			credits, err := a.repo.ListForSale(ctx)
			if err != nil {
				return err
			}
			printCredits(credits, "No credits are listed for sale.", "for sale")
			return nil
		})
	},
}

var ownedCmd = &cobra.Command{
	Use:   "owned [address|name.eth]",
	Short: "List credits held by an address (default: the connected account)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, func(ctx context.Context, a *app) error {
			owner := a.sessions.Current().Account
			if len(args) == 1 {
				var err error
				if owner, err = resolveAddress(ctx, a, "cmd.owned", args[0]); err != nil {
					return err
				}
			}
			credits, err := a.repo.ListOwned(ctx, owner)
			if err != nil {
				return err
			}
			printCredits(credits, "No credits held by "+owner.Hex()+".", "held")
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <token-id>",
	Short: "Show one credit in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTokenID("cmd.show", args[0])
		if err != nil {
			return err
		}
		return withQuery(cmd, func(ctx context.Context, a *app) error {
			c, err := a.repo.Credit(ctx, id)
			if err != nil {
				return err
			}
			owner, err := a.repo.Owner(ctx, id)
			if err != nil {
				return err
			}
			fmt.Println(ui.CreditDetail(c, owner, time.Now()))
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show market and portfolio figures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, func(ctx context.Context, a *app) error {
			if err := a.view.Refresh(ctx, market.ScopeAll); err != nil {
				return err
			}
			fmt.Println(ui.StatsBlock(a.view.Stats()))
			return nil
		})
	},
}

// withQuery connects silently and runs fn under the query timeout.
func withQuery(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), config.QueryTimeout)
	defer cancel()
	if _, err := a.connected(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}

func printCredits(credits []market.Credit, empty, noun string) {
	if len(credits) == 0 {
		fmt.Println(ui.Info(empty))
		return
	}
	fmt.Println(ui.CreditsTable(credits, time.Now(), -1))
	fmt.Println(ui.Meta(fmt.Sprintf("%d credit(s) %s", len(credits), noun)))
}

func parseTokenID(op, s string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(strings.TrimPrefix(s, "#"), 10)
	if !ok || id.Sign() < 0 {
		return nil, errs.Validation(op, "invalid token id %q", s)
	}
	return id, nil
}

func parseAddress(op, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errs.Validation(op, "invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// resolveAddress accepts a hex address or an ENS name resolved on the
// active chain.
func resolveAddress(ctx context.Context, a *app, op, s string) (common.Address, error) {
	if !ens.IsName(s) {
		return parseAddress(op, s)
	}
	b, err := a.wallet.Backend(ctx)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := ens.NewResolver(b).Resolve(ctx, s)
	if err != nil {
		return common.Address{}, errs.Query(op, err)
	}
	log.Debug().Str("name", s).Str("address", addr.Hex()).Msg("resolved ENS name")
	return addr, nil
}
