// Package session owns the wallet connection and the contract bound to it.
//
// A Manager holds exactly one Session value. Every transition builds a new
// Session and swaps it in whole, so readers never observe a contract
// without an account or the other way round. Transitions race freely; the
// newest one wins and stale completions are dropped.
package session

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/Mohsinsiddi/w3carbon/internal/carbon"
	"github.com/Mohsinsiddi/w3carbon/internal/errs"
	"github.com/Mohsinsiddi/w3carbon/internal/listen"
	"github.com/Mohsinsiddi/w3carbon/internal/wallet"
)

// State is the connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Session is an immutable snapshot of the connection.
type Session struct {
	Account  common.Address
	ChainID  int64
	Contract *carbon.Contract
	State    State
	Err      error
}

// Connected reports whether both the account and the contract are bound.
func (s Session) Connected() bool {
	return s.State == Connected && s.Contract != nil
}

// ReadOnly reports whether the bound account cannot sign.
func (s Session) ReadOnly() bool {
	return s.Contract != nil && s.Contract.Account() == (common.Address{})
}

// Transport is the wallet the session talks to.
type Transport interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (int64, error)
	SwitchChain(ctx context.Context, chainID int64) error
	Backend(ctx context.Context) (carbon.Backend, error)
	Signer(account common.Address) (carbon.TxSigner, error)
	OnAccountsChanged(fn func([]common.Address)) (unsubscribe func())
	OnChainChanged(fn func(int64)) (unsubscribe func())
}

// Deployments resolves the contract address for a chain.
type Deployments func(chainID int64) (common.Address, bool)

// Manager drives the Session state machine.
type Manager struct {
	transport   Transport
	deployments Deployments
	contractOpt []carbon.Option
	timeout     time.Duration
	log         zerolog.Logger

	cur atomic.Pointer[Session]

	mu            sync.Mutex
	gen           uint64
	unsubAccounts func()
	unsubChain    func()

	// emitMu orders deliveries; emitted is the last session delivered.
	emitMu  sync.Mutex
	emitted *Session
	subs    listen.Registry[Session]
}

// Option configures a Manager.
type Option func(*Manager)

// WithContractOptions passes options to every contract binding.
func WithContractOptions(opts ...carbon.Option) Option {
	return func(m *Manager) { m.contractOpt = append(m.contractOpt, opts...) }
}

// WithEventTimeout bounds the rebinding triggered by wallet events.
func WithEventTimeout(d time.Duration) Option { return func(m *Manager) { m.timeout = d } }

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option { return func(m *Manager) { m.log = l } }

// NewManager returns a disconnected Manager. t may be nil when no wallet
// is available; Connect then fails with an environment error.
func NewManager(t Transport, deployments Deployments, opts ...Option) *Manager {
	if isNil(t) {
		t = nil
	}
	m := &Manager{
		transport:   t,
		deployments: deployments,
		timeout:     30 * time.Second,
		log:         zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	m.cur.Store(&Session{State: Disconnected})
	return m
}

// Current returns the current Session.
func (m *Manager) Current() Session { return *m.cur.Load() }

// Subscribe registers fn for Session replacements, delivered in the order
// they were stored. A transition superseded before delivery is skipped. fn
// must not start a transition itself.
func (m *Manager) Subscribe(fn func(Session)) (unsubscribe func()) {
	return m.subs.Add(fn)
}

// Connect asks the wallet for accounts and binds the contract for the
// wallet's current chain.
func (m *Manager) Connect(ctx context.Context) (Session, error) {
	const op = "session.Connect"
	if m.transport == nil {
		err := errs.Environment(op, errs.ErrNoWallet)
		m.replace(&Session{State: Disconnected, Err: err})
		return m.Current(), err
	}

	gen := m.begin(&Session{State: Connecting})
	accounts, err := m.transport.RequestAccounts(ctx)
	if err != nil {
		return m.fail(gen, op, err)
	}
	if len(accounts) == 0 {
		return m.fail(gen, op, errs.Environment(op, errors.New("wallet returned no accounts")))
	}
	return m.bind(ctx, gen, op, accounts[0])
}

// Reconnect silently restores a previously approved connection. A wallet
// that reports no accounts leaves the session disconnected without error.
func (m *Manager) Reconnect(ctx context.Context) (Session, error) {
	const op = "session.Reconnect"
	if m.transport == nil {
		return m.Current(), nil
	}
	accounts, err := m.transport.Accounts(ctx)
	if err != nil {
		gen := m.begin(&Session{State: Connecting})
		return m.fail(gen, op, err)
	}
	if len(accounts) == 0 {
		return m.Current(), nil
	}
	gen := m.begin(&Session{State: Connecting})
	return m.bind(ctx, gen, op, accounts[0])
}

// Disconnect clears the session and stops listening to the wallet.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.cur.Store(&Session{State: Disconnected})
	m.mu.Unlock()

	m.unlisten()
	m.log.Info().Msg("wallet disconnected")
	m.publish(gen)
}

// SwitchNetwork asks the wallet to change chains. The wallet's chain change
// event then rebinds the session; without registered listeners the session
// is restored from the wallet's accounts instead. Rejections and unknown
// chains come back as UserRejected and UnrecognizedChain errors.
func (m *Manager) SwitchNetwork(ctx context.Context, chainID int64) (Session, error) {
	const op = "session.SwitchNetwork"
	if m.transport == nil {
		return m.Current(), errs.Environment(op, errs.ErrNoWallet)
	}
	if err := m.transport.SwitchChain(ctx, chainID); err != nil {
		var e *errs.Error
		if !errors.As(err, &e) {
			err = errs.Environment(op, err)
		}
		m.log.Warn().Err(err).Int64("chainId", chainID).Msg("network switch failed")
		return m.Current(), err
	}
	if !m.Listening() {
		if _, err := m.Reconnect(ctx); err != nil {
			m.log.Debug().Err(err).Int64("chainId", chainID).Msg("no session after network switch")
		}
	}
	return m.Current(), nil
}

// bind completes a connection for account on the wallet's current chain.
func (m *Manager) bind(ctx context.Context, gen uint64, op string, account common.Address) (Session, error) {
	chainID, err := m.transport.ChainID(ctx)
	if err != nil {
		return m.fail(gen, op, errs.Environment(op, err))
	}
	address, ok := m.deployments(chainID)
	if !ok {
		return m.fail(gen, op, errs.Environment(op, errs.ErrNoDeployment))
	}
	backend, err := m.transport.Backend(ctx)
	if err != nil {
		return m.fail(gen, op, err)
	}

	var signer carbon.TxSigner
	s, err := m.transport.Signer(account)
	switch {
	case err == nil && !isNil(s):
		signer = s
	case errors.Is(err, wallet.ErrWatchOnly):
		m.log.Warn().Str("account", account.Hex()).Msg("account cannot sign; contract bound read-only")
	case err != nil:
		return m.fail(gen, op, errs.Environment(op, err))
	}

	contract := carbon.Bind(address, backend, signer, chainID, m.contractOpt...)
	next := &Session{Account: account, ChainID: chainID, Contract: contract, State: Connected}
	if !m.finish(gen, next) {
		return m.Current(), nil
	}
	m.listen()
	m.log.Info().Str("account", account.Hex()).Int64("chainId", chainID).
		Str("contract", address.Hex()).Msg("wallet connected")
	return *next, nil
}

func (m *Manager) fail(gen uint64, op string, err error) (Session, error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		err = errs.Environment(op, err)
	}
	m.finish(gen, &Session{State: Disconnected, Err: err})
	m.log.Warn().Err(err).Str("op", op).Msg("connection failed")
	return m.Current(), err
}

// listen registers the wallet listeners once.
func (m *Manager) listen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubAccounts == nil {
		m.unsubAccounts = m.transport.OnAccountsChanged(m.accountsChanged)
	}
	if m.unsubChain == nil {
		m.unsubChain = m.transport.OnChainChanged(m.chainChanged)
	}
}

// unlisten removes the wallet listeners.
func (m *Manager) unlisten() {
	m.mu.Lock()
	unsubA, unsubC := m.unsubAccounts, m.unsubChain
	m.unsubAccounts, m.unsubChain = nil, nil
	m.mu.Unlock()

	if unsubA != nil {
		unsubA()
	}
	if unsubC != nil {
		unsubC()
	}
}

// Listening reports whether wallet listeners are registered.
func (m *Manager) Listening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsubAccounts != nil && m.unsubChain != nil
}

func (m *Manager) accountsChanged(accounts []common.Address) {
	if len(accounts) == 0 {
		m.Disconnect()
		return
	}
	cur := m.Current()
	if cur.Connected() && cur.Account == accounts[0] {
		return
	}
	m.log.Info().Str("account", accounts[0].Hex()).Msg("wallet account changed")
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	gen := m.begin(&Session{State: Connecting, ChainID: cur.ChainID})
	m.bind(ctx, gen, "session.accountsChanged", accounts[0]) //nolint:errcheck
}

// chainChanged drops everything bound to the old chain and rebinds.
func (m *Manager) chainChanged(chainID int64) {
	const op = "session.chainChanged"
	m.log.Info().Int64("chainId", chainID).Msg("wallet chain changed")
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	gen := m.begin(&Session{State: Connecting, ChainID: chainID})
	accounts, err := m.transport.Accounts(ctx)
	if err != nil {
		m.fail(gen, op, err) //nolint:errcheck
		return
	}
	if len(accounts) == 0 {
		if m.finish(gen, &Session{State: Disconnected, ChainID: chainID}) {
			m.unlisten()
		}
		return
	}
	m.bind(ctx, gen, op, accounts[0]) //nolint:errcheck
}

// begin starts a transition and returns its generation.
func (m *Manager) begin(s *Session) uint64 {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.cur.Store(s)
	m.mu.Unlock()
	m.publish(gen)
	return gen
}

// finish stores s unless a newer transition started after gen.
func (m *Manager) finish(gen uint64, s *Session) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}
	m.cur.Store(s)
	m.mu.Unlock()
	m.publish(gen)
	return true
}

func (m *Manager) replace(s *Session) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.cur.Store(s)
	m.mu.Unlock()
	m.publish(gen)
}

// publish delivers the current session unless a transition newer than gen
// has started; that transition publishes for itself.
func (m *Manager) publish(gen uint64) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	stale := m.gen != gen
	s := m.cur.Load()
	m.mu.Unlock()
	if stale || s == m.emitted {
		return
	}
	m.emitted = s
	m.subs.Emit(*s)
}

// isNil catches typed nil pointers stored in an interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Func, reflect.Slice, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
