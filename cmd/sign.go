package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3carbon/internal/errs"
	"github.com/Mohsinsiddi/w3carbon/internal/ui"
	"github.com/Mohsinsiddi/w3carbon/internal/wallet"
)

var (
	verifySig     string
	verifyAddress string
)

var walletSignCmd = &cobra.Command{
	Use:   "sign <message>",
	Short: "Sign a message with EIP-191 (personal_sign)",
	Long: `Sign a plaintext message using EIP-191 personal_sign.

The message is prefixed with "\x19Ethereum Signed Message:\n<len>"
before being hashed and signed. Verifiers use this to prove wallet
ownership off-chain.

Examples:
  w3carbon wallet sign "hello world"
  w3carbon wallet sign "login nonce: 12345" --wallet alice`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := args[0]

		name := walletFlag
		if name == "" {
			name = cfg.DefaultWallet
		}
		if name == "" {
			return errs.Environment("sign", errs.ErrNoWallet)
		}

		mgr := newWalletManager()
		w, err := mgr.Get(name)
		if err != nil {
			return err
		}
		if !w.CanSign() {
			return fmt.Errorf("wallet %q: %w", name, wallet.ErrWatchOnly)
		}
		if !wallet.IsUnlocked(name) {
			fmt.Println(ui.Meta("Tip: run 'w3carbon wallet unlock' to skip keychain prompts."))
		}

		sig, err := wallet.SignMessage(w, mgr.KeyStore(), []byte(message))
		if err != nil {
			return fmt.Errorf("signing failed: %w", err)
		}
		sigHex := "0x" + hex.EncodeToString(sig)

		fmt.Println(ui.KeyValueBlock("Message Signed", [][2]string{
			{"Signer", ui.Addr(w.Address)},
			{"Message", message},
			{"Signature", sigHex},
		}))
		fmt.Println(ui.Hint("Verify: w3carbon wallet verify \"" + message + "\" --sig " + sigHex + " --address " + w.Address))
		return nil
	},
}

var walletVerifyCmd = &cobra.Command{
	Use:   "verify <message>",
	Short: "Verify an EIP-191 signed message",
	Long: `Recover the signer of an EIP-191 personal_sign signature and, when
--address is given, compare it to the expected signer.

Examples:
  w3carbon wallet verify "hello world" --sig 0x... --address 0x...
  w3carbon wallet verify "hello world" --sig 0x...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := args[0]

		if verifySig == "" {
			return errs.Validation("verify", "--sig is required")
		}
		sigBytes, err := hex.DecodeString(strings.TrimPrefix(verifySig, "0x"))
		if err != nil {
			return errs.Validation("verify", "invalid signature hex: %v", err)
		}

		recovered, err := wallet.VerifyMessage([]byte(message), sigBytes)
		if err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		recoveredAddr := recovered.Hex()

		pairs := [][2]string{
			{"Message", message},
			{"Recovered signer", ui.Addr(recoveredAddr)},
		}
		if verifyAddress != "" {
			if strings.EqualFold(recoveredAddr, verifyAddress) {
				pairs = append(pairs, [2]string{"Match", ui.Success("signer matches")})
			} else {
				pairs = append(pairs,
					[2]string{"Expected", ui.Addr(verifyAddress)},
					[2]string{"Match", ui.Err("signature does NOT match expected address")})
			}
		}

		fmt.Println(ui.KeyValueBlock("Signature Verification", pairs))
		return nil
	},
}

func init() {
	walletVerifyCmd.Flags().StringVar(&verifySig, "sig", "", "hex signature to verify (required)")
	walletVerifyCmd.Flags().StringVar(&verifyAddress, "address", "", "expected signer address")
}
