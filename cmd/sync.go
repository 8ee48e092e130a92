package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	csync "github.com/Mohsinsiddi/w3carbon/internal/sync"
	"github.com/Mohsinsiddi/w3carbon/internal/ui"
)

var (
	deploymentsWatch    bool
	deploymentsInterval time.Duration
)

var deploymentsCmd = &cobra.Command{
	Use:   "deployments",
	Short: "Import contract deployments",
}

var deploymentsImportCmd = &cobra.Command{
	Use:   "import <file|url>",
	Short: "Import deployment records written by the deploy script",
	Long: `Read one deployment record, or an array of them, and store the
CarbonCreditNFT address for each chain:

  {"contractName": "CarbonCreditNFT", "contractAddress": "0x...", "chainId": 31337, ...}

The source is a local path or an http(s) URL. With --watch the source is
polled until Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		syncer := csync.New(cfg, csync.WithLogger(log))

		if deploymentsWatch {
			fmt.Println(ui.Meta(fmt.Sprintf("Watching %s every %s. Press Ctrl+C to stop.", args[0], deploymentsInterval)))
			return syncer.Watch(cmd.Context(), args[0], deploymentsInterval)
		}

		spin := ui.NewSpinner("Importing deployments...")
		spin.Start()
		records, err := syncer.Run(cmd.Context(), args[0])
		spin.Stop()
		if err != nil {
			return err
		}
		t := ui.NewTable([]ui.Column{
			{Title: "Chain", Width: 10},
			{Title: "Network", Width: 14},
			{Title: "Contract", Width: 44},
			{Title: "Block", Width: 8},
		})
		for _, r := range records {
			t.AddRow(ui.Row{r.ChainID.String(), r.Network, ui.Addr(r.ContractAddress), fmt.Sprint(r.BlockNumber)})
		}
		fmt.Println(t.Render())
		fmt.Println(ui.Success(fmt.Sprintf("%d deployment(s) imported.", len(records))))
		return nil
	},
}

func init() {
	deploymentsImportCmd.Flags().BoolVar(&deploymentsWatch, "watch", false, "keep polling the source")
	deploymentsImportCmd.Flags().DurationVar(&deploymentsInterval, "interval", 30*time.Second, "poll interval with --watch")
	deploymentsCmd.AddCommand(deploymentsImportCmd)
}
