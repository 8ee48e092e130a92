package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3carbon/internal/demo"
	"github.com/Mohsinsiddi/w3carbon/internal/market"
	"github.com/Mohsinsiddi/w3carbon/internal/ui"
)

var (
	demoAs    string
	demoNoTUI bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Try the marketplace on an in-memory chain",
	Long: `Start a simulated chain with three Hardhat development accounts
(verifier, alice, bob), mint six sample projects, list four of them and open
the dashboard. Nothing touches a real network.

Examples:
  w3carbon demo              # browse as the verifier
  w3carbon demo --as alice   # shop as alice
  w3carbon demo --no-tui     # print the market and exit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tui := interactive() && !demoNoTUI
		if tui {
			fileLogger()
		}
		ctx := cmd.Context()

		var progress *ui.Progress
		opts := demo.Options{Log: log}
		if !tui {
			progress = ui.NewProgress(cmd.ErrOrStderr(), false)
			opts.Sink = progress
		}
		env, err := demo.New(ctx, opts)
		if err != nil {
			return err
		}
		if err := env.Seed(ctx); err != nil {
			return err
		}
		if demoAs != demo.Verifier {
			if err := env.Use(demoAs); err != nil {
				return err
			}
		}
		// The session rebinds on the account change; reload for the new owner.
		if err := env.View.Refresh(ctx, market.ScopeAll); err != nil {
			return err
		}

		if tui {
			return ui.RunDashboard(dashboardDeps(env.Sessions, env.View, env.Actions, env.Notes,
				time.Duration(cfg.NoteTTL)*time.Second))
		}

		s := env.Sessions.Current()
		fmt.Println(ui.SessionBlock(s, nil))
		snap := env.View.Snapshot()
		fmt.Println(ui.StyleHeader.Render("For sale"))
		printCredits(snap.ForSale, "No credits are listed for sale.", "for sale")
		fmt.Println(ui.StyleHeader.Render("Held by " + demoAs))
		printCredits(snap.Owned, "Nothing held.", "held")
		fmt.Println(ui.StatsBlock(env.View.Stats()))
		return nil
	},
}

func init() {
	demoCmd.Flags().StringVar(&demoAs, "as", demo.Verifier, "demo account: verifier, alice or bob")
	demoCmd.Flags().BoolVar(&demoNoTUI, "no-tui", false, "print instead of opening the dashboard")
}
