package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3carbon/internal/config"
	"github.com/Mohsinsiddi/w3carbon/internal/errs"
	"github.com/Mohsinsiddi/w3carbon/internal/logging"
	"github.com/Mohsinsiddi/w3carbon/internal/ui"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/w3carbon/cmd.Version=1.2.3" .
var Version = "0.1.0"

var (
	cfgDir     string
	cfg        *config.Config
	log        zerolog.Logger
	verbose    bool
	assumeYes  bool
	walletFlag string
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "w3carbon",
	Short: "Tokenized carbon credit marketplace in your terminal",
	Long: `w3carbon mints, lists, buys and retires carbon credit NFTs on an EVM chain.

  Connect a wallet, browse credits for sale, manage the credits you hold
  and watch the market live in the dashboard.

Try it without a node:  w3carbon demo`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load config (skip for commands that don't need it).
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		log = newLogger(cfg.LogFile)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.Err(err.Error()))
		if h := errorHint(err); h != "" {
			fmt.Fprintln(os.Stderr, ui.Hint(h))
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", "", "config directory (default: $W3CARBON_CONFIG_DIR or ~/.w3carbon)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "approve wallet prompts without asking")
	rootCmd.PersistentFlags().StringVar(&walletFlag, "wallet", "", "wallet to use (default: config)")

	rootCmd.AddCommand(
		walletCmd,
		networkCmd,
		connectCmd,
		disconnectCmd,
		statusCmd,
		marketCmd,
		ownedCmd,
		showCmd,
		statsCmd,
		mintCmd,
		listCmd,
		unlistCmd,
		buyCmd,
		retireCmd,
		verifierCmd,
		dashboardCmd,
		demoCmd,
		configCmd,
		deploymentsCmd,
	)
}

// newLogger builds the process logger. With file set, logs go there instead
// of stderr, which keeps the dashboard's screen clean.
func newLogger(file string) zerolog.Logger {
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	return logging.New(logging.Config{
		Level:  level,
		Pretty: isatty.IsTerminal(os.Stderr.Fd()),
		File:   file,
	})
}

// fileLogger switches logging to the configured file, or to w3carbon.log in
// the config directory, for full-screen programs.
func fileLogger() {
	file := cfg.LogFile
	if file == "" {
		file = filepath.Join(cfg.Dir(), "w3carbon.log")
	}
	log = newLogger(file)
}

func interactive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

// errorHint suggests the next step for the error kinds a user can fix.
func errorHint(err error) string {
	switch {
	case errs.IsKind(err, errs.KindEnvironment):
		return "Check your wallet and network: w3carbon status"
	case errs.IsKind(err, errs.KindUserRejected):
		return "Approve the request, or pass --yes to approve automatically."
	case errs.IsKind(err, errs.KindUnrecognizedChain):
		return "Register the network first: w3carbon network add <name> <chain-id> <rpc-url>"
	}
	switch errs.ReasonOf(err) {
	case errs.ReasonPriceChanged, errs.ReasonNotForSale:
		return "The listing changed. Reload it with: w3carbon market"
	case errs.ReasonInsufficientFunds:
		return "Check the account balance: w3carbon status"
	case errs.ReasonNotAuthorized:
		return "Only verifiers can mint: w3carbon verifier check <address>"
	}
	return ""
}
