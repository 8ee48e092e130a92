// Package simulated is an in-memory CarbonCreditNFT deployment that speaks
// the carbon.Backend interface. Calls and transactions are ABI-decoded and
// executed against the contract rules, so the real encoding path is
// exercised without a node. It backs the demo command and the tests.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultAddress is where the contract lands on a fresh Hardhat node.
var DefaultAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// DefaultChainID is the Hardhat chain ID.
const DefaultChainID int64 = 31337

var (
	baseFee = big.NewInt(1_000_000_000)
	tipCap  = big.NewInt(1_000_000_000)
)

// estimatedGas is returned by EstimateGas for every successful dry run.
const estimatedGas uint64 = 180_000

// Chain is the simulated backend. It is safe for concurrent use.
type Chain struct {
	mu       sync.Mutex
	chainID  *big.Int
	signer   types.Signer
	address  common.Address
	now      func() time.Time
	autoMine bool

	state    *state
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	queue    []*types.Transaction
	block    uint64

	callErrs map[string]error
	sendErr  error
}

// Option configures a Chain.
type Option func(*Chain)

// WithChainID sets the chain ID (default 31337).
func WithChainID(id int64) Option {
	return func(c *Chain) {
		c.chainID = big.NewInt(id)
		c.signer = types.LatestSignerForChainID(c.chainID)
	}
}

// WithAddress sets the contract address.
func WithAddress(a common.Address) Option { return func(c *Chain) { c.address = a } }

// WithClock replaces time.Now for issuance and expiry checks.
func WithClock(now func() time.Time) Option { return func(c *Chain) { c.now = now } }

// WithManualMining queues transactions until Mine is called.
func WithManualMining() Option { return func(c *Chain) { c.autoMine = false } }

// New deploys the contract with owner as administrator. The owner is also
// an authorized verifier, as in the constructor of the real contract.
func New(owner common.Address, opts ...Option) *Chain {
	c := &Chain{
		chainID:  big.NewInt(DefaultChainID),
		address:  DefaultAddress,
		now:      time.Now,
		autoMine: true,
		balances: make(map[common.Address]*big.Int),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
		callErrs: make(map[string]error),
		block:    1,
	}
	c.signer = types.LatestSignerForChainID(c.chainID)
	for _, o := range opts {
		o(c)
	}
	c.state = newState(owner)
	return c
}

// Address returns the contract address.
func (c *Chain) Address() common.Address { return c.address }

// Fund credits wei to an account.
func (c *Chain) Fund(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balanceOf(addr).Add(c.balanceOf(addr), wei)
}

// FailCalls makes every eth_call of method return err until cleared with a
// nil err.
func (c *Chain) FailCalls(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.callErrs, method)
		return
	}
	c.callErrs[method] = err
}

// FailNextSend makes the next SendTransaction return err.
func (c *Chain) FailNextSend(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Pending returns the number of queued transactions.
func (c *Chain) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Mine executes every queued transaction in submission order, one block each.
func (c *Chain) Mine() {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.queue
	c.queue = nil
	for _, tx := range q {
		c.mineLocked(tx)
	}
}

// --- carbon.Backend ---

// ChainID returns the configured chain ID.
func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

// BalanceAt returns the balance of an account. The block number is ignored.
func (c *Chain) BalanceAt(_ context.Context, addr common.Address, _ *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.balanceOf(addr)), nil
}

// CallContract executes msg against the current state without committing.
// The block number is ignored.
func (c *Chain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.To == nil || *msg.To != c.address {
		return nil, nil
	}
	call, err := decodeCall(msg.Data)
	if err != nil {
		return nil, err
	}
	if e, ok := c.callErrs[call.method.Name]; ok {
		return nil, e
	}
	if call.method.IsConstant() {
		return c.state.read(call)
	}
	st := c.state.clone()
	if _, err := st.write(call, msg.From, valueOf(msg.Value), c.now()); err != nil {
		return nil, err
	}
	return []byte{}, nil
}

// EstimateGas dry-runs msg. A failing rule is returned as a revert error.
func (c *Chain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.To == nil || *msg.To != c.address {
		return 21_000, nil
	}
	call, err := decodeCall(msg.Data)
	if err != nil {
		return 0, err
	}
	if v := valueOf(msg.Value); c.balanceOf(msg.From).Cmp(v) < 0 {
		return 0, errInsufficientFunds
	}
	st := c.state.clone()
	if _, err := st.write(call, msg.From, valueOf(msg.Value), c.now()); err != nil {
		return 0, err
	}
	return estimatedGas, nil
}

// SuggestGasTipCap returns a fixed 1 gwei tip.
func (c *Chain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return new(big.Int).Set(tipCap), nil
}

// HeaderByNumber returns a synthetic head header. The number is ignored.
func (c *Chain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &types.Header{
		Number:  new(big.Int).SetUint64(c.block),
		BaseFee: new(big.Int).Set(baseFee),
		Time:    uint64(c.now().Unix()),
	}, nil
}

// PendingNonceAt counts mined and queued transactions of account.
func (c *Chain) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[account], nil
}

// SendTransaction validates the signature, nonce and funds, then queues or
// mines the transaction.
func (c *Chain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sendErr; err != nil {
		c.sendErr = nil
		return err
	}
	if tx.ChainId().Cmp(c.chainID) != 0 {
		return fmt.Errorf("invalid chain id %s, want %s", tx.ChainId(), c.chainID)
	}
	from, err := types.Sender(c.signer, tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if want := c.nonces[from]; tx.Nonce() != want {
		return fmt.Errorf("invalid nonce: have %d, want %d", tx.Nonce(), want)
	}
	if c.balanceOf(from).Cmp(tx.Value()) < 0 {
		return errInsufficientFunds
	}
	c.nonces[from]++
	if c.autoMine {
		c.mineLocked(tx)
		return nil
	}
	c.queue = append(c.queue, tx)
	return nil
}

// TransactionReceipt returns ethereum.NotFound until the transaction is mined.
func (c *Chain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// mineLocked executes tx in a new block. A failing rule leaves state
// untouched and produces a status-0 receipt.
func (c *Chain) mineLocked(tx *types.Transaction) {
	c.block++
	from, _ := types.Sender(c.signer, tx)
	receipt := &types.Receipt{
		Type:        tx.Type(),
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(c.block),
		GasUsed:     estimatedGas,
		Status:      types.ReceiptStatusFailed,
	}
	defer func() { c.receipts[tx.Hash()] = receipt }()

	if tx.To() == nil || *tx.To() != c.address {
		if tx.To() != nil && c.balanceOf(from).Cmp(tx.Value()) >= 0 {
			c.balanceOf(from).Sub(c.balanceOf(from), tx.Value())
			c.balanceOf(*tx.To()).Add(c.balanceOf(*tx.To()), tx.Value())
			receipt.Status = types.ReceiptStatusSuccessful
		}
		return
	}
	call, err := decodeCall(tx.Data())
	if err != nil || c.balanceOf(from).Cmp(tx.Value()) < 0 {
		return
	}
	st := c.state.clone()
	logs, err := st.write(call, from, tx.Value(), c.now())
	if err != nil {
		return
	}
	c.state = st
	if tx.Value().Sign() > 0 {
		c.balanceOf(from).Sub(c.balanceOf(from), tx.Value())
		if seller := st.lastSeller; seller != (common.Address{}) {
			c.balanceOf(seller).Add(c.balanceOf(seller), tx.Value())
		}
	}
	for i, l := range logs {
		l.Address = c.address
		l.TxHash = tx.Hash()
		l.BlockNumber = c.block
		l.Index = uint(i)
	}
	receipt.Logs = logs
	receipt.Status = types.ReceiptStatusSuccessful
}

func (c *Chain) balanceOf(addr common.Address) *big.Int {
	b, ok := c.balances[addr]
	if !ok {
		b = new(big.Int)
		c.balances[addr] = b
	}
	return b
}

func valueOf(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

var errInsufficientFunds = errors.New("insufficient funds for gas * price + value")
