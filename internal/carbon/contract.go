// Package carbon is the typed client of the CarbonCreditNFT contract. Reads
// go through eth_call, writes are built as EIP-1559 transactions, signed by a
// TxSigner and broadcast through the Backend.
package carbon

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/Mohsinsiddi/w3carbon/internal/chain"
)

// ErrReadOnly is returned by write calls on a contract bound without a signer.
var ErrReadOnly = errors.New("contract is bound read-only")

// Backend is the chain access a Contract needs. *chain.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TxSigner signs transactions for one account.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// CreditRecord mirrors the getCarbonCredit tuple. Field names follow the
// ABI component names so abi.ConvertType can fill it.
type CreditRecord struct {
	TokenId      *big.Int //nolint:revive
	CarbonAmount *big.Int
	ProjectName  string
	Location     string
	IssuanceDate *big.Int
	ExpiryDate   *big.Int
	Verifier     common.Address
	IsRetired    bool
	Price        *big.Int
	IsForSale    bool
}

// Contract is a CarbonCreditNFT deployment bound to a backend and, for
// writes, a signer.
type Contract struct {
	address  common.Address
	backend  Backend
	signer   TxSigner
	chainID  *big.Int
	gasLimit uint64
	poll     time.Duration
	log      zerolog.Logger
}

// Option configures a Contract.
type Option func(*Contract)

// WithFallbackGas sets the gas limit used when estimation fails for a
// reason other than a revert.
func WithFallbackGas(limit uint64) Option { return func(c *Contract) { c.gasLimit = limit } }

// WithPollInterval sets the receipt polling interval used by WaitMined.
func WithPollInterval(d time.Duration) Option { return func(c *Contract) { c.poll = d } }

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option { return func(c *Contract) { c.log = l } }

// DefaultFallbackGas is the gas limit used when estimation fails without a
// revert reason.
const DefaultFallbackGas uint64 = 500_000

// Bind returns a Contract at address. signer may be nil for read-only use.
func Bind(address common.Address, backend Backend, signer TxSigner, chainID int64, opts ...Option) *Contract {
	c := &Contract{
		address:  address,
		backend:  backend,
		signer:   signer,
		chainID:  big.NewInt(chainID),
		gasLimit: DefaultFallbackGas,
		poll:     chain.DefaultPollInterval,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Address returns the contract address.
func (c *Contract) Address() common.Address { return c.address }

// ChainID returns the chain the contract was bound on.
func (c *Contract) ChainID() int64 { return c.chainID.Int64() }

// Account returns the signer's address, or the zero address when read-only.
func (c *Contract) Account() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

// --- reads ---

func (c *Contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := ParsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}
	msg := ethereum.CallMsg{From: c.Account(), To: &c.address, Data: data}
	raw, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		if reason, ok := chain.RevertReason(err); ok {
			return nil, &RevertError{Method: method, Reason: reason}
		}
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("calling %s: empty result (no contract at %s?)", method, c.address.Hex())
	}
	out, err := ParsedABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", method, err)
	}
	return out, nil
}

// TokensForSale returns the IDs of every listed credit, in contract order.
func (c *Contract) TokensForSale(ctx context.Context) ([]*big.Int, error) {
	out, err := c.call(ctx, MethodTokensForSale)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int), nil
}

// TokensByOwner returns the IDs owned by owner, in contract order.
func (c *Contract) TokensByOwner(ctx context.Context, owner common.Address) ([]*big.Int, error) {
	out, err := c.call(ctx, MethodTokensByOwner, owner)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int), nil
}

// Credit returns the on-chain record of a token.
func (c *Contract) Credit(ctx context.Context, tokenID *big.Int) (CreditRecord, error) {
	out, err := c.call(ctx, MethodGetCredit, tokenID)
	if err != nil {
		return CreditRecord{}, err
	}
	return *abi.ConvertType(out[0], new(CreditRecord)).(*CreditRecord), nil
}

// TokenURI returns the metadata pointer of a token.
func (c *Contract) TokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	out, err := c.call(ctx, MethodTokenURI, tokenID)
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// OwnerOf returns the current holder of a token.
func (c *Contract) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	out, err := c.call(ctx, MethodOwnerOf, tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// BalanceOf returns how many tokens owner holds.
func (c *Contract) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := c.call(ctx, MethodBalanceOf, owner)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// IsVerifier reports whether addr may mint.
func (c *Contract) IsVerifier(ctx context.Context, addr common.Address) (bool, error) {
	out, err := c.call(ctx, MethodIsVerifier, addr)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// Owner returns the contract administrator.
func (c *Contract) Owner(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, MethodContractOwner)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}
