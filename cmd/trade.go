package cmd

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3carbon/internal/chain"
	"github.com/Mohsinsiddi/w3carbon/internal/ens"
	"github.com/Mohsinsiddi/w3carbon/internal/errs"
	"github.com/Mohsinsiddi/w3carbon/internal/market"
	"github.com/Mohsinsiddi/w3carbon/internal/ui"
)

var (
	mintTo           string
	mintAmount       int64
	mintProject      string
	mintLocation     string
	mintExpiry       string
	mintYears        int
	mintDescription  string
	mintImage        string
	mintVerification string
)

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint a new carbon credit (authorized verifiers only)",
	Long: `Mint a carbon credit NFT. Without --project on a terminal, a wizard asks
for the details.

Metadata is pinned to IPFS when Pinata credentials are configured
(w3carbon config set-pinata) and embedded in the token URI otherwise.

Examples:
  w3carbon mint
  w3carbon mint --project "Mangrove Restoration" --location Philippines --amount 75 --years 2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := mintRequest()
		if err != nil {
			return err
		}
		return withAction(cmd, func(ctx context.Context, a *app) (market.Result, error) {
			return a.actions.Mint(ctx, req)
		})
	},
}

func mintRequest() (market.MintRequest, error) {
	const op = "cmd.mint"
	if mintProject == "" && interactive() {
		answers, err := ui.RunMintWizard()
		if err != nil {
			return market.MintRequest{}, err
		}
		req, err := answers.Request(time.Now())
		if err != nil {
			return market.MintRequest{}, err
		}
		req.Image = mintImage
		req.Verification = mintVerification
		return req, nil
	}

	expiry := time.Now().AddDate(mintYears, 0, 0)
	if mintExpiry != "" {
		t, err := time.Parse("2006-01-02", mintExpiry)
		if err != nil {
			return market.MintRequest{}, errs.Validation(op, "expiry %q is not a YYYY-MM-DD date", mintExpiry)
		}
		expiry = t
	}
	return market.MintRequest{
		Recipient:    mintTo,
		CarbonAmount: big.NewInt(mintAmount),
		ProjectName:  mintProject,
		Location:     mintLocation,
		Expiry:       expiry,
		Description:  mintDescription,
		Image:        mintImage,
		Verification: mintVerification,
	}, nil
}

var listCmd = &cobra.Command{
	Use:   "list <token-id> <price-eth>",
	Short: "List a credit you hold for sale",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTokenID("cmd.list", args[0])
		if err != nil {
			return err
		}
		return withAction(cmd, func(ctx context.Context, a *app) (market.Result, error) {
			return a.actions.ListForSale(ctx, id, args[1])
		})
	},
}

var unlistCmd = &cobra.Command{
	Use:   "unlist <token-id>",
	Short: "Take a credit off the market",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTokenID("cmd.unlist", args[0])
		if err != nil {
			return err
		}
		return withAction(cmd, func(ctx context.Context, a *app) (market.Result, error) {
			return a.actions.Unlist(ctx, id)
		})
	},
}

var buyCmd = &cobra.Command{
	Use:   "buy <token-id> [price-eth]",
	Short: "Buy a listed credit",
	Long: `Buy a credit at the price you saw. If the listing changed since, the
purchase is refused before anything is sent.

Without a price, the current listing is shown and you are asked to confirm.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		const op = "cmd.buy"
		id, err := parseTokenID(op, args[0])
		if err != nil {
			return err
		}
		return withAction(cmd, func(ctx context.Context, a *app) (market.Result, error) {
			var price *big.Int
			if len(args) == 2 {
				if price, err = chain.ParseEther(args[1]); err != nil {
					return market.Result{}, errs.Validation(op, "invalid price %q: %v", args[1], err)
				}
			} else {
				c, err := a.repo.Credit(ctx, id)
				if err != nil {
					return market.Result{}, err
				}
				if !c.IsForSale {
					return market.Result{}, &errs.Error{Kind: errs.KindTransaction, Op: op, Reason: errs.ReasonNotForSale, Msg: fmt.Sprintf("credit #%s is not for sale", id)}
				}
				price = c.Price
				if !assumeYes && !ui.Confirm(fmt.Sprintf("Buy #%s %q for %s?", id, c.ProjectName, ui.FormatPrice(price))) {
					return market.Result{}, errs.UserRejected(op, nil)
				}
			}
			return a.actions.Purchase(ctx, id, price)
		})
	},
}

var retireCmd = &cobra.Command{
	Use:   "retire <token-id>",
	Short: "Retire a credit to claim its offset (irreversible)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		const op = "cmd.retire"
		id, err := parseTokenID(op, args[0])
		if err != nil {
			return err
		}
		if !assumeYes && !ui.ConfirmDanger(fmt.Sprintf("Retire credit #%s? This cannot be undone.", id)) {
			fmt.Println(ui.Meta("Cancelled."))
			return nil
		}
		return withAction(cmd, func(ctx context.Context, a *app) (market.Result, error) {
			return a.actions.Retire(ctx, id)
		})
	},
}

var verifierCmd = &cobra.Command{
	Use:   "verifier",
	Short: "Manage authorized verifiers",
}

var verifierAddCmd = &cobra.Command{
	Use:   "add <address|name.eth>",
	Short: "Authorize an address to mint credits (contract owner only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAction(cmd, func(ctx context.Context, a *app) (market.Result, error) {
			target := args[0]
			if ens.IsName(target) {
				addr, err := resolveAddress(ctx, a, "cmd.verifier.add", target)
				if err != nil {
					return market.Result{}, err
				}
				target = addr.Hex()
			}
			return a.actions.AddVerifier(ctx, target)
		})
	},
}

var verifierCheckCmd = &cobra.Command{
	Use:   "check <address|name.eth>",
	Short: "Report whether an address may mint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, func(ctx context.Context, a *app) error {
			addr, err := resolveAddress(ctx, a, "cmd.verifier.check", args[0])
			if err != nil {
				return err
			}
			ok, err := a.sessions.Current().Contract.IsVerifier(ctx, addr)
			if err != nil {
				return errs.Query("cmd.verifier.check", err)
			}
			if ok {
				fmt.Println(ui.Success(addr.Hex() + " is an authorized verifier."))
			} else {
				fmt.Println(ui.Warn(addr.Hex() + " is not a verifier."))
			}
			return nil
		})
	},
}

// withAction connects silently, runs one write action with progress output
// and prints its receipt.
func withAction(cmd *cobra.Command, fn func(ctx context.Context, a *app) (market.Result, error)) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()
	s, err := a.connected(cmd.Context())
	if err != nil {
		return err
	}
	if s.ReadOnly() {
		return errs.Environment("cmd.action", fmt.Errorf("wallet %s is watch-only", s.Account.Hex()))
	}
	r, err := fn(cmd.Context(), a)
	if err != nil {
		return err
	}
	printResult(a, s.ChainID, r)
	return nil
}

func init() {
	f := mintCmd.Flags()
	f.StringVar(&mintTo, "to", "", "recipient address (default: connected account)")
	f.Int64Var(&mintAmount, "amount", 0, "tonnes of CO₂")
	f.StringVar(&mintProject, "project", "", "project name")
	f.StringVar(&mintLocation, "location", "", "project location")
	f.StringVar(&mintExpiry, "expiry", "", "expiry date YYYY-MM-DD (overrides --years)")
	f.IntVar(&mintYears, "years", 1, "validity in years")
	f.StringVar(&mintDescription, "description", "", "metadata description")
	f.StringVar(&mintImage, "image", "", "metadata image URL")
	f.StringVar(&mintVerification, "verification", "", "verification status attribute")

	verifierCmd.AddCommand(verifierAddCmd, verifierCheckCmd)
}
