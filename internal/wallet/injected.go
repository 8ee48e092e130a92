package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/Mohsinsiddi/w3carbon/internal/carbon"
	"github.com/Mohsinsiddi/w3carbon/internal/chain"
	"github.com/Mohsinsiddi/w3carbon/internal/errs"
	"github.com/Mohsinsiddi/w3carbon/internal/listen"
	"github.com/Mohsinsiddi/w3carbon/internal/rpc"
)

// RequestKind identifies what the wallet is asking the user to approve.
type RequestKind int

const (
	RequestConnect RequestKind = iota
	RequestSwitchChain
	RequestAddChain
)

func (k RequestKind) String() string {
	switch k {
	case RequestConnect:
		return "connect"
	case RequestSwitchChain:
		return "switch chain"
	case RequestAddChain:
		return "add chain"
	}
	return "unknown"
}

// Request is shown to the user for approval.
type Request struct {
	Kind    RequestKind
	Wallet  string
	Account common.Address
	Network *chain.Network
}

// Approver decides wallet prompts.
type Approver interface {
	Approve(ctx context.Context, req Request) (bool, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, req Request) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, req Request) (bool, error) { return f(ctx, req) }

// AutoApprove accepts every request.
var AutoApprove = ApproverFunc(func(context.Context, Request) (bool, error) { return true, nil })

// DialFunc opens a backend for a network.
type DialFunc func(ctx context.Context, n *chain.Network) (carbon.Backend, error)

// Injected is the wallet the dApp talks to: it exposes the selected
// account once the user has approved the connection, tracks the active
// chain and emits account and chain change events.
type Injected struct {
	mgr      *Manager
	registry *chain.Registry
	approver Approver
	dial     DialFunc
	selector *rpc.Selector
	log      zerolog.Logger

	mu         sync.Mutex
	walletName string
	chainID    int64
	authorized bool
	backends   map[int64]carbon.Backend

	accountsChanged listen.Registry[[]common.Address]
	chainChanged    listen.Registry[int64]
}

// InjectedOption configures an Injected wallet.
type InjectedOption func(*Injected)

// WithApprover sets who answers prompts. The default rejects everything.
func WithApprover(a Approver) InjectedOption { return func(w *Injected) { w.approver = a } }

// WithDialer replaces RPC dialing, e.g. with a simulated backend.
func WithDialer(d DialFunc) InjectedOption { return func(w *Injected) { w.dial = d } }

// WithSelector sets the RPC endpoint selector used by the default dialer.
func WithSelector(s *rpc.Selector) InjectedOption { return func(w *Injected) { w.selector = s } }

// WithActiveWallet selects a wallet by name instead of the manager default.
func WithActiveWallet(name string) InjectedOption {
	return func(w *Injected) { w.walletName = name }
}

// WithChain sets the initial chain.
func WithChain(id int64) InjectedOption { return func(w *Injected) { w.chainID = id } }

// WithAuthorized restores a previously approved connection.
func WithAuthorized(ok bool) InjectedOption { return func(w *Injected) { w.authorized = ok } }

// WithInjectedLogger attaches a logger.
func WithInjectedLogger(l zerolog.Logger) InjectedOption { return func(w *Injected) { w.log = l } }

// NewInjected creates a wallet over mgr's wallets and the registry's chains.
func NewInjected(mgr *Manager, registry *chain.Registry, opts ...InjectedOption) *Injected {
	w := &Injected{
		mgr:      mgr,
		registry: registry,
		approver: ApproverFunc(func(context.Context, Request) (bool, error) { return false, nil }),
		chainID:  chain.LocalChainID,
		log:      zerolog.Nop(),
		backends: make(map[int64]carbon.Backend),
	}
	for _, o := range opts {
		o(w)
	}
	if w.selector == nil {
		w.selector = rpc.NewSelector(rpc.AlgorithmFastest, rpc.WithLogger(w.log))
	}
	if w.dial == nil {
		w.dial = w.dialRPC
	}
	return w
}

// RequestAccounts asks the user to connect the active wallet.
func (w *Injected) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	const op = "wallet.RequestAccounts"
	wal, err := w.active()
	if err != nil {
		return nil, errs.Environment(op, err)
	}

	w.mu.Lock()
	authorized := w.authorized
	w.mu.Unlock()
	if authorized {
		return []common.Address{wal.Account()}, nil
	}

	ok, err := w.approver.Approve(ctx, Request{Kind: RequestConnect, Wallet: wal.Name, Account: wal.Account()})
	if err != nil {
		return nil, errs.UserRejected(op, err)
	}
	if !ok {
		return nil, errs.UserRejected(op, errors.New("user rejected the request"))
	}

	w.mu.Lock()
	w.authorized = true
	w.mu.Unlock()
	w.log.Info().Str("wallet", wal.Name).Str("account", wal.Address).Msg("connection approved")
	return []common.Address{wal.Account()}, nil
}

// Accounts returns the connected accounts without prompting. It is empty
// until a connection has been approved.
func (w *Injected) Accounts(context.Context) ([]common.Address, error) {
	w.mu.Lock()
	authorized := w.authorized
	w.mu.Unlock()
	if !authorized {
		return nil, nil
	}
	wal, err := w.active()
	if err != nil {
		if errors.Is(err, errs.ErrNoWallet) {
			return nil, nil
		}
		return nil, err
	}
	return []common.Address{wal.Account()}, nil
}

// ChainID returns the active chain.
func (w *Injected) ChainID(context.Context) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID, nil
}

// Authorized reports whether the user has approved the connection.
func (w *Injected) Authorized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.authorized
}

// SwitchChain moves the wallet to chainID after approval. Unknown chains
// fail with an UnrecognizedChain error and must be added first.
func (w *Injected) SwitchChain(ctx context.Context, chainID int64) error {
	const op = "wallet.SwitchChain"
	n, err := w.registry.GetByChainID(chainID)
	if err != nil {
		return errs.UnrecognizedChain(op, chainID)
	}

	w.mu.Lock()
	same := w.chainID == chainID
	w.mu.Unlock()
	if same {
		return nil
	}

	ok, err := w.approver.Approve(ctx, Request{Kind: RequestSwitchChain, Network: n})
	if err != nil {
		return errs.UserRejected(op, err)
	}
	if !ok {
		return errs.UserRejected(op, errors.New("user rejected the request"))
	}

	w.mu.Lock()
	w.chainID = chainID
	w.mu.Unlock()
	w.log.Info().Str("network", n.Name).Int64("chainId", chainID).Msg("chain switched")
	w.chainChanged.Emit(chainID)
	return nil
}

// AddChain registers a network with the wallet after approval.
func (w *Injected) AddChain(ctx context.Context, n chain.Network) error {
	const op = "wallet.AddChain"
	ok, err := w.approver.Approve(ctx, Request{Kind: RequestAddChain, Network: &n})
	if err != nil {
		return errs.UserRejected(op, err)
	}
	if !ok {
		return errs.UserRejected(op, errors.New("user rejected the request"))
	}
	if err := w.registry.Add(n); err != nil {
		return errs.Environment(op, err)
	}
	w.mu.Lock()
	delete(w.backends, n.ChainID)
	w.mu.Unlock()
	w.selector.Forget(n.ChainID)
	return nil
}

// SelectWallet makes name the active wallet. Connected listeners see the
// new account.
func (w *Injected) SelectWallet(name string) error {
	wal, err := w.mgr.Get(name)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.walletName = name
	authorized := w.authorized
	w.mu.Unlock()
	if authorized {
		w.accountsChanged.Emit([]common.Address{wal.Account()})
	}
	return nil
}

// Revoke withdraws the connection; listeners see an empty account list.
func (w *Injected) Revoke() {
	w.mu.Lock()
	was := w.authorized
	w.authorized = false
	w.mu.Unlock()
	if was {
		w.accountsChanged.Emit(nil)
	}
}

// Backend returns an RPC backend for the active chain. Backends are cached
// per chain.
func (w *Injected) Backend(ctx context.Context) (carbon.Backend, error) {
	const op = "wallet.Backend"
	w.mu.Lock()
	id := w.chainID
	b, ok := w.backends[id]
	w.mu.Unlock()
	if ok {
		return b, nil
	}

	n, err := w.registry.GetByChainID(id)
	if err != nil {
		return nil, errs.UnrecognizedChain(op, id)
	}
	b, err = w.dial(ctx, n)
	if err != nil {
		w.selector.Forget(id)
		return nil, errs.Environment(op, err)
	}

	w.mu.Lock()
	if cached, ok := w.backends[id]; ok {
		b = cached
	} else {
		w.backends[id] = b
	}
	w.mu.Unlock()
	return b, nil
}

// Signer returns a transaction signer for account. Watch-only wallets
// return ErrWatchOnly.
func (w *Injected) Signer(account common.Address) (carbon.TxSigner, error) {
	wal, err := w.mgr.ByAddress(account)
	if err != nil {
		return nil, err
	}
	return NewSigner(wal, w.mgr.KeyStore())
}

// OnAccountsChanged registers fn for account changes.
func (w *Injected) OnAccountsChanged(fn func([]common.Address)) (unsubscribe func()) {
	return w.accountsChanged.Add(fn)
}

// OnChainChanged registers fn for chain changes.
func (w *Injected) OnChainChanged(fn func(int64)) (unsubscribe func()) {
	return w.chainChanged.Add(fn)
}

// Balance returns the native balance of account on the active chain when
// the backend can report it.
func (w *Injected) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	b, err := w.Backend(ctx)
	if err != nil {
		return nil, err
	}
	br, ok := b.(interface {
		BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error)
	})
	if !ok {
		return nil, fmt.Errorf("backend cannot report balances")
	}
	return br.BalanceAt(ctx, account, nil)
}

func (w *Injected) active() (*Wallet, error) {
	w.mu.Lock()
	name := w.walletName
	w.mu.Unlock()
	if name != "" {
		wal, err := w.mgr.Get(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errs.ErrNoWallet, name)
		}
		return wal, nil
	}
	if wal := w.mgr.Default(); wal != nil {
		return wal, nil
	}
	return nil, errs.ErrNoWallet
}

func (w *Injected) dialRPC(ctx context.Context, n *chain.Network) (carbon.Backend, error) {
	url, err := w.selector.Best(ctx, n)
	if err != nil {
		return nil, err
	}
	c, err := chain.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	w.log.Debug().Str("network", n.Name).Str("rpc", url).Msg("dialed rpc")
	return c, nil
}
