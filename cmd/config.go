package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3carbon/internal/ui"
)

var (
	pinataJWT     string
	pinataKey     string
	pinataSecret  string
	pinataGateway string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"list"},
	Short:   "Show current configuration",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		shown.Pinata.JWT = redact(shown.Pinata.JWT)
		shown.Pinata.APISecret = redact(shown.Pinata.APISecret)
		data, err := json.MarshalIndent(&shown, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("%s\n\n", ui.StyleTitle.Render("Current Configuration"))
		fmt.Println(string(data))

		pairs := [][2]string{}
		for id, addr := range cfg.DeploymentMap() {
			pairs = append(pairs, [2]string{"chain " + strconv.FormatInt(id, 10), addr})
		}
		fmt.Println(ui.KeyValueBlock("Effective deployments", pairs))
		fmt.Println(ui.Meta("Config directory: " + cfg.Dir()))
		return nil
	},
}

var configSetContractCmd = &cobra.Command{
	Use:   "set-contract <chain-id> <address>",
	Short: "Record the contract address for a chain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid chain id %q", args[0])
		}
		if !common.IsHexAddress(args[1]) {
			return fmt.Errorf("invalid contract address %q", args[1])
		}
		addr := common.HexToAddress(args[1]).Hex()
		cfg.SetDeployment(id, addr)
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Contract for chain %d set to %s", id, ui.Addr(addr))))
		return nil
	},
}

var configSetPinataCmd = &cobra.Command{
	Use:   "set-pinata",
	Short: "Store Pinata credentials for IPFS metadata pinning",
	Long: `Store Pinata credentials. A JWT wins over the API key and secret pair.
$W3CARBON_PINATA_JWT overrides the stored JWT without saving it.

Examples:
  w3carbon config set-pinata --jwt eyJhbGciOi...
  w3carbon config set-pinata --key abc --secret def`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if pinataJWT == "" && pinataKey == "" && pinataGateway == "" {
			return fmt.Errorf("nothing to set: pass --jwt, --key/--secret or --gateway")
		}
		if (pinataKey == "") != (pinataSecret == "") {
			return fmt.Errorf("--key and --secret must be given together")
		}
		if pinataJWT != "" {
			cfg.Pinata.JWT = pinataJWT
		}
		if pinataKey != "" {
			cfg.Pinata.APIKey, cfg.Pinata.APISecret = pinataKey, pinataSecret
		}
		if pinataGateway != "" {
			cfg.Pinata.GatewayURL = pinataGateway
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success("Pinata credentials saved. New credits will be pinned to IPFS."))
		return nil
	},
}

var configSetRPCCmd = &cobra.Command{
	Use:   "set-rpc <network> <url>",
	Short: "Add an RPC endpoint for a network",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		network, url := args[0], args[1]
		if err := cfg.AddRPC(network, url); err != nil {
			// Already exists, not fatal.
			fmt.Println(ui.Warn(err.Error()))
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("RPC for %s set to %s", network, url)))
		return nil
	},
}

func redact(s string) string {
	if len(s) <= 8 {
		if s == "" {
			return ""
		}
		return "****"
	}
	return s[:4] + "…" + s[len(s)-4:]
}

func init() {
	f := configSetPinataCmd.Flags()
	f.StringVar(&pinataJWT, "jwt", "", "Pinata JWT")
	f.StringVar(&pinataKey, "key", "", "Pinata API key")
	f.StringVar(&pinataSecret, "secret", "", "Pinata API secret")
	f.StringVar(&pinataGateway, "gateway", "", "IPFS gateway base URL")
	configCmd.AddCommand(configShowCmd, configSetContractCmd, configSetPinataCmd, configSetRPCCmd)
}
