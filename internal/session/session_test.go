package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3carbon/internal/carbon"
	"github.com/Mohsinsiddi/w3carbon/internal/carbon/simulated"
	"github.com/Mohsinsiddi/w3carbon/internal/chain"
	"github.com/Mohsinsiddi/w3carbon/internal/errs"
	"github.com/Mohsinsiddi/w3carbon/internal/listen"
	"github.com/Mohsinsiddi/w3carbon/internal/session"
	"github.com/Mohsinsiddi/w3carbon/internal/wallet"
)

var (
	deployer = simulated.MustKeySigner(simulated.DevKeys[0])
	buyer    = simulated.MustKeySigner(simulated.DevKeys[1])
)

// fakeWallet is a scriptable Transport.
type fakeWallet struct {
	mu         sync.Mutex
	accounts   []common.Address
	approved   bool
	rejectNext bool
	chainID    int64
	known      map[int64]bool
	backendErr error
	signers    map[common.Address]carbon.TxSigner
	sim        *simulated.Chain

	accountsChanged listen.Registry[[]common.Address]
	chainChanged    listen.Registry[int64]
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		accounts: []common.Address{deployer.Address()},
		chainID:  simulated.DefaultChainID,
		known:    map[int64]bool{simulated.DefaultChainID: true, 1: true, 11155111: true},
		signers: map[common.Address]carbon.TxSigner{
			deployer.Address(): deployer,
			buyer.Address():    buyer,
		},
		sim: simulated.New(deployer.Address()),
	}
}

func (w *fakeWallet) RequestAccounts(context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rejectNext {
		w.rejectNext = false
		return nil, errs.UserRejected("fake", errors.New("denied"))
	}
	w.approved = true
	return append([]common.Address(nil), w.accounts...), nil
}

func (w *fakeWallet) Accounts(context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.approved {
		return nil, nil
	}
	return append([]common.Address(nil), w.accounts...), nil
}

func (w *fakeWallet) ChainID(context.Context) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID, nil
}

func (w *fakeWallet) SwitchChain(_ context.Context, id int64) error {
	w.mu.Lock()
	if !w.known[id] {
		w.mu.Unlock()
		return errs.UnrecognizedChain("fake", id)
	}
	if w.rejectNext {
		w.rejectNext = false
		w.mu.Unlock()
		return errs.UserRejected("fake", errors.New("denied"))
	}
	w.chainID = id
	w.mu.Unlock()
	w.chainChanged.Emit(id)
	return nil
}

func (w *fakeWallet) Backend(context.Context) (carbon.Backend, error) {
	if w.backendErr != nil {
		return nil, w.backendErr
	}
	return w.sim, nil
}

func (w *fakeWallet) Signer(a common.Address) (carbon.TxSigner, error) {
	s, ok := w.signers[a]
	if !ok {
		return nil, wallet.ErrWatchOnly
	}
	return s, nil
}

func (w *fakeWallet) OnAccountsChanged(fn func([]common.Address)) func() {
	return w.accountsChanged.Add(fn)
}

func (w *fakeWallet) OnChainChanged(fn func(int64)) func() { return w.chainChanged.Add(fn) }

func (w *fakeWallet) setAccounts(a ...common.Address) {
	w.mu.Lock()
	w.accounts = a
	w.mu.Unlock()
	w.accountsChanged.Emit(a)
}

// localOnly knows a deployment on the Hardhat chain and on mainnet.
func localOnly(id int64) (common.Address, bool) {
	switch id {
	case simulated.DefaultChainID, 1:
		return simulated.DefaultAddress, true
	}
	return common.Address{}, false
}

func assertConsistent(t *testing.T, s session.Session) {
	t.Helper()
	hasAccount := s.Account != (common.Address{})
	hasContract := s.Contract != nil
	assert.Equal(t, hasAccount, hasContract, "account and contract must be bound together: %+v", s)
}

func TestConnectWithoutWallet(t *testing.T) {
	m := session.NewManager(nil, localOnly)

	s, err := m.Connect(context.Background())
	assert.ErrorIs(t, err, errs.ErrEnvironment)
	assert.ErrorIs(t, err, errs.ErrNoWallet)
	assert.Equal(t, session.Disconnected, s.State)
	assert.Equal(t, err, m.Current().Err)
}

func TestConnectWithTypedNilWallet(t *testing.T) {
	var w *fakeWallet
	m := session.NewManager(w, localOnly)
	_, err := m.Connect(context.Background())
	assert.ErrorIs(t, err, errs.ErrNoWallet)

	s, err := m.Reconnect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Disconnected, s.State)
}

func TestConnectBindsContract(t *testing.T) {
	w := newFakeWallet()
	m := session.NewManager(w, localOnly)

	var states []session.State
	m.Subscribe(func(s session.Session) {
		assertConsistent(t, s)
		states = append(states, s.State)
	})

	s, err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Connected())
	assert.Equal(t, deployer.Address(), s.Account)
	assert.Equal(t, simulated.DefaultChainID, s.ChainID)
	assert.Equal(t, simulated.DefaultAddress, s.Contract.Address())
	assert.Equal(t, deployer.Address(), s.Contract.Account())
	assert.False(t, s.ReadOnly())
	assert.Equal(t, []session.State{session.Connecting, session.Connected}, states)
	assert.True(t, m.Listening())

	// The bound contract works end to end.
	ok, err := s.Contract.IsVerifier(context.Background(), deployer.Address())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConnectRejected(t *testing.T) {
	w := newFakeWallet()
	w.rejectNext = true
	m := session.NewManager(w, localOnly)

	s, err := m.Connect(context.Background())
	assert.ErrorIs(t, err, errs.ErrUserRejected)
	assert.Equal(t, session.Disconnected, s.State)
	assertConsistent(t, s)
	assert.False(t, m.Listening())
}

func TestConnectNoDeployment(t *testing.T) {
	w := newFakeWallet()
	w.chainID = 11155111
	m := session.NewManager(w, localOnly)

	_, err := m.Connect(context.Background())
	assert.ErrorIs(t, err, errs.ErrEnvironment)
	assert.ErrorIs(t, err, errs.ErrNoDeployment)
	assert.Equal(t, session.Disconnected, m.Current().State)
}

func TestConnectBackendFailure(t *testing.T) {
	w := newFakeWallet()
	w.backendErr = errors.New("dial tcp: connection refused")
	m := session.NewManager(w, localOnly)

	_, err := m.Connect(context.Background())
	assert.ErrorIs(t, err, errs.ErrEnvironment)
	assertConsistent(t, m.Current())
}

func TestConnectWatchOnlyIsReadOnly(t *testing.T) {
	w := newFakeWallet()
	watcher := common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	w.accounts = []common.Address{watcher}
	m := session.NewManager(w, localOnly)

	s, err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Connected())
	assert.True(t, s.ReadOnly())
	assert.Equal(t, watcher, s.Account)
}

func TestReconnectSilently(t *testing.T) {
	w := newFakeWallet()
	m := session.NewManager(w, localOnly)

	s, err := m.Reconnect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Disconnected, s.State, "nothing approved yet")

	w.approved = true
	s, err = m.Reconnect(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Connected())
}

func TestListenersRegisteredOnce(t *testing.T) {
	w := newFakeWallet()
	m := session.NewManager(w, localOnly)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.Connect(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, w.accountsChanged.Len())
	assert.Equal(t, 1, w.chainChanged.Len())

	m.Disconnect()
	assert.Zero(t, w.accountsChanged.Len())
	assert.Zero(t, w.chainChanged.Len())
	assert.False(t, m.Listening())
}

func TestDisconnectClearsEverything(t *testing.T) {
	w := newFakeWallet()
	m := session.NewManager(w, localOnly)
	_, err := m.Connect(context.Background())
	require.NoError(t, err)

	m.Disconnect()
	s := m.Current()
	assert.Equal(t, session.Disconnected, s.State)
	assert.Nil(t, s.Contract)
	assert.Equal(t, common.Address{}, s.Account)
	assert.NoError(t, s.Err)

	// Always succeeds, even twice.
	m.Disconnect()
}

func TestAccountsChangedEmptyDisconnects(t *testing.T) {
	w := newFakeWallet()
	m := session.NewManager(w, localOnly)
	_, err := m.Connect(context.Background())
	require.NoError(t, err)

	w.setAccounts()
	assert.Equal(t, session.Disconnected, m.Current().State)
	assertConsistent(t, m.Current())
	assert.False(t, m.Listening())
}

func TestAccountsChangedRebinds(t *testing.T) {
	w := newFakeWallet()
	m := session.NewManager(w, localOnly)
	first, err := m.Connect(context.Background())
	require.NoError(t, err)

	w.setAccounts(buyer.Address())
	s := m.Current()
	require.True(t, s.Connected())
	assert.Equal(t, buyer.Address(), s.Account)
	assert.Equal(t, buyer.Address(), s.Contract.Account())
	assert.NotSame(t, first.Contract, s.Contract)

	// Same account again: no rebind.
	w.setAccounts(buyer.Address())
	assert.Same(t, s.Contract, m.Current().Contract)
}

func TestSwitchNetworkRebinds(t *testing.T) {
	w := newFakeWallet()
	m := session.NewManager(w, localOnly)
	first, err := m.Connect(context.Background())
	require.NoError(t, err)

	s, err := m.SwitchNetwork(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, s.Connected())
	assert.Equal(t, int64(1), s.ChainID)
	assert.Equal(t, int64(1), s.Contract.ChainID())
	assert.NotSame(t, first.Contract, s.Contract, "chain change is a hard reset")
}

func TestSwitchNetworkWithoutDeploymentDisconnects(t *testing.T) {
	w := newFakeWallet()
	m := session.NewManager(w, localOnly)
	_, err := m.Connect(context.Background())
	require.NoError(t, err)

	s, err := m.SwitchNetwork(context.Background(), 11155111)
	require.NoError(t, err, "the switch itself succeeded")
	assert.Equal(t, session.Disconnected, s.State)
	assert.ErrorIs(t, s.Err, errs.ErrNoDeployment)
	assertConsistent(t, s)

	// Switching back recovers because the listeners stay registered.
	s, err = m.SwitchNetwork(context.Background(), simulated.DefaultChainID)
	require.NoError(t, err)
	assert.True(t, s.Connected())
}

func TestSwitchNetworkConnectsAfterFailedReconnect(t *testing.T) {
	w := newFakeWallet()
	w.chainID = 11155111
	w.approved = true
	m := session.NewManager(w, localOnly)

	s, err := m.Reconnect(context.Background())
	require.ErrorIs(t, err, errs.ErrNoDeployment)
	assert.Equal(t, session.Disconnected, s.State)
	require.False(t, m.Listening(), "nothing was bound")

	s, err = m.SwitchNetwork(context.Background(), simulated.DefaultChainID)
	require.NoError(t, err)
	assert.True(t, s.Connected())
	assert.Equal(t, simulated.DefaultChainID, s.ChainID)
	assert.Equal(t, deployer.Address(), s.Account)
	assert.True(t, m.Listening())
	assertConsistent(t, s)
}

func TestSwitchNetworkWithoutApprovalStaysDisconnected(t *testing.T) {
	w := newFakeWallet()
	m := session.NewManager(w, localOnly)

	s, err := m.SwitchNetwork(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, session.Disconnected, s.State)
	assert.NoError(t, s.Err)
	assert.False(t, m.Listening())
}

func TestChainChangedWithoutAccountsStopsListening(t *testing.T) {
	w := newFakeWallet()
	m := session.NewManager(w, localOnly)
	_, err := m.Connect(context.Background())
	require.NoError(t, err)
	require.True(t, m.Listening())

	// The wallet locks without announcing it, then changes chain.
	w.mu.Lock()
	w.accounts = nil
	w.mu.Unlock()
	s, err := m.SwitchNetwork(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, session.Disconnected, s.State)
	assertConsistent(t, s)
	assert.False(t, m.Listening(), "same teardown as Disconnect")
	assert.Zero(t, w.accountsChanged.Len())
	assert.Zero(t, w.chainChanged.Len())
}

func TestSwitchNetworkErrorsAreDistinct(t *testing.T) {
	w := newFakeWallet()
	m := session.NewManager(w, localOnly)
	connected, err := m.Connect(context.Background())
	require.NoError(t, err)

	_, err = m.SwitchNetwork(context.Background(), 424242)
	assert.ErrorIs(t, err, errs.ErrUnrecognizedChain)
	assert.False(t, errs.IsKind(err, errs.KindUserRejected))

	w.rejectNext = true
	_, err = m.SwitchNetwork(context.Background(), 1)
	assert.ErrorIs(t, err, errs.ErrUserRejected)
	assert.False(t, errs.IsKind(err, errs.KindUnrecognizedChain))

	assert.Same(t, connected.Contract, m.Current().Contract, "failed switch leaves the session alone")
}

func TestSwitchNetworkWithoutWallet(t *testing.T) {
	m := session.NewManager(nil, localOnly)
	_, err := m.SwitchNetwork(context.Background(), 1)
	assert.ErrorIs(t, err, errs.ErrNoWallet)
}

func TestWithInjectedWallet(t *testing.T) {
	t.Setenv(wallet.EnvPrivateKey, "")
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	_, err := mgr.AddWithKey("deployer", "0x"+simulated.DevKeys[0])
	require.NoError(t, err)

	sim := simulated.New(deployer.Address())
	inj := wallet.NewInjected(mgr, chain.NewRegistry(),
		wallet.WithApprover(wallet.AutoApprove),
		wallet.WithDialer(func(context.Context, *chain.Network) (carbon.Backend, error) { return sim, nil }))

	m := session.NewManager(inj, localOnly)
	s, err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, deployer.Address(), s.Contract.Account())

	inj.Revoke()
	assert.Equal(t, session.Disconnected, m.Current().State)
}

func TestConcurrentTransitionsStayConsistent(t *testing.T) {
	w := newFakeWallet()
	m := session.NewManager(w, localOnly)
	m.Subscribe(func(s session.Session) { assertConsistent(t, s) })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Connect(context.Background()) //nolint:errcheck
		}()
		go func() {
			defer wg.Done()
			m.Disconnect()
		}()
	}
	wg.Wait()
	assertConsistent(t, m.Current())
}

func TestSubscribersSeeSessionsInOrder(t *testing.T) {
	w := newFakeWallet()
	m := session.NewManager(w, localOnly)

	var (
		mu   sync.Mutex
		seen []session.Session
	)
	m.Subscribe(func(s session.Session) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			m.Connect(context.Background()) //nolint:errcheck
		}()
		go func() {
			defer wg.Done()
			m.Disconnect()
		}()
		go func() {
			defer wg.Done()
			m.Reconnect(context.Background()) //nolint:errcheck
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	last := seen[len(seen)-1]
	cur := m.Current()
	assert.Equal(t, cur.State, last.State, "the last delivery is the current session")
	assert.Equal(t, cur.Account, last.Account)
	assert.Same(t, cur.Contract, last.Contract)
}
