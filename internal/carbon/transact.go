package carbon

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Mohsinsiddi/w3carbon/internal/chain"
)

// RevertError is a contract call or transaction that the EVM rejected.
type RevertError struct {
	Method string
	Reason string
	TxHash common.Hash
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return e.Method + " reverted"
	}
	return e.Method + " reverted: " + e.Reason
}

// MintParams are the inputs of mintCarbonCredit.
type MintParams struct {
	To           common.Address
	CarbonAmount *big.Int
	ProjectName  string
	Location     string
	ExpiryDate   *big.Int
	TokenURI     string
}

// Mint submits mintCarbonCredit. The caller must be an authorized verifier.
func (c *Contract) Mint(ctx context.Context, p MintParams) (*types.Transaction, error) {
	return c.transact(ctx, nil, MethodMint, p.To, p.CarbonAmount, p.ProjectName, p.Location, p.ExpiryDate, p.TokenURI)
}

// ListForSale submits listForSale with a price in wei.
func (c *Contract) ListForSale(ctx context.Context, tokenID, price *big.Int) (*types.Transaction, error) {
	return c.transact(ctx, nil, MethodList, tokenID, price)
}

// RemoveFromSale submits removeFromSale.
func (c *Contract) RemoveFromSale(ctx context.Context, tokenID *big.Int) (*types.Transaction, error) {
	return c.transact(ctx, nil, MethodUnlist, tokenID)
}

// Buy submits buyCarbonCredit attaching value wei.
func (c *Contract) Buy(ctx context.Context, tokenID, value *big.Int) (*types.Transaction, error) {
	return c.transact(ctx, value, MethodBuy, tokenID)
}

// Retire submits retireCarbonCredit.
func (c *Contract) Retire(ctx context.Context, tokenID *big.Int) (*types.Transaction, error) {
	return c.transact(ctx, nil, MethodRetire, tokenID)
}

// AddVerifier submits addVerifier. Only the contract owner may call it.
func (c *Contract) AddVerifier(ctx context.Context, verifier common.Address) (*types.Transaction, error) {
	return c.transact(ctx, nil, MethodAddVerifier, verifier)
}

// transact packs, estimates, prices, signs and broadcasts one call.
// A revert during estimation is returned as *RevertError and nothing is sent.
func (c *Contract) transact(ctx context.Context, value *big.Int, method string, args ...interface{}) (*types.Transaction, error) {
	if c.signer == nil {
		return nil, ErrReadOnly
	}
	data, err := ParsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}
	if value == nil {
		value = new(big.Int)
	}
	from := c.signer.Address()
	msg := ethereum.CallMsg{From: from, To: &c.address, Value: value, Data: data}

	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		if reason, ok := chain.RevertReason(err); ok {
			return nil, &RevertError{Method: method, Reason: reason}
		}
		if isInsufficientFunds(err) {
			return nil, fmt.Errorf("estimating gas for %s: %w", method, err)
		}
		c.log.Debug().Err(err).Str("method", method).Uint64("fallback", c.gasLimit).Msg("gas estimation failed")
		gas = c.gasLimit
	}

	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting gas tip: %w", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("getting latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("getting nonce: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &c.address,
		Value:     value,
		Data:      data,
	})
	signed, err := c.signer.SignTx(tx, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("signing %s: %w", method, err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		if reason, ok := chain.RevertReason(err); ok {
			return nil, &RevertError{Method: method, Reason: reason, TxHash: signed.Hash()}
		}
		return nil, fmt.Errorf("broadcasting %s: %w", method, err)
	}
	c.log.Info().Str("method", method).Str("tx", signed.Hash().Hex()).Uint64("nonce", nonce).Msg("transaction submitted")
	return signed, nil
}

// WaitMined blocks until tx is mined. A reverted transaction is replayed as
// an eth_call against its parent block to recover the revert reason.
func (c *Contract) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := chain.WaitForReceipt(ctx, c.backend, tx.Hash(), c.poll)
	if err == nil {
		return receipt, nil
	}
	if !errors.Is(err, chain.ErrReverted) {
		return nil, err
	}

	method := c.methodName(tx.Data())
	rerr := &RevertError{Method: method, TxHash: tx.Hash()}
	msg := ethereum.CallMsg{From: c.Account(), To: tx.To(), Value: tx.Value(), Data: tx.Data(), Gas: tx.Gas()}
	var at *big.Int
	if receipt.BlockNumber != nil && receipt.BlockNumber.Sign() > 0 {
		at = new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))
	}
	if _, callErr := c.backend.CallContract(ctx, msg, at); callErr != nil {
		if reason, ok := chain.RevertReason(callErr); ok {
			rerr.Reason = reason
		}
	}
	return receipt, rerr
}

func (c *Contract) methodName(data []byte) string {
	if len(data) < 4 {
		return "transaction"
	}
	m, err := ParsedABI.MethodById(data[:4])
	if err != nil {
		return "transaction"
	}
	return m.Name
}

func isInsufficientFunds(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "insufficient funds")
}
