package market_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3carbon/internal/carbon"
	"github.com/Mohsinsiddi/w3carbon/internal/carbon/simulated"
	"github.com/Mohsinsiddi/w3carbon/internal/errs"
	"github.com/Mohsinsiddi/w3carbon/internal/listen"
	"github.com/Mohsinsiddi/w3carbon/internal/market"
	"github.com/Mohsinsiddi/w3carbon/internal/notify"
	"github.com/Mohsinsiddi/w3carbon/internal/session"
)

// source is a SessionSource whose session the test swaps.
type source struct {
	mu sync.Mutex
	s  session.Session
}

func (s *source) Current() session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s
}

func (s *source) set(v session.Session) {
	s.mu.Lock()
	s.s = v
	s.mu.Unlock()
}

type fixture struct {
	sim      *simulated.Chain
	verifier *simulated.KeySigner // contract owner, may mint
	alice    *simulated.KeySigner
	bob      *simulated.KeySigner
	src      *source
	repo     *market.Repository
	view     *market.View
	actions  *market.Actions
	queue    *notify.Queue
}

func newFixture(t *testing.T, opts ...simulated.Option) *fixture {
	t.Helper()
	f := &fixture{
		verifier: simulated.MustKeySigner(simulated.DevKeys[0]),
		alice:    simulated.MustKeySigner(simulated.DevKeys[1]),
		bob:      simulated.MustKeySigner(simulated.DevKeys[2]),
		src:      &source{},
		queue:    notify.NewQueue(100),
	}
	f.sim = simulated.New(f.verifier.Address(), opts...)
	for _, s := range []*simulated.KeySigner{f.verifier, f.alice, f.bob} {
		f.sim.Fund(s.Address(), simulated.Ether(100))
	}
	f.repo = market.NewRepository(f.src, market.WithConcurrency(4))
	f.view = market.NewView(f.repo, f.src)
	f.actions = market.NewActions(f.src, f.repo, f.view, f.queue, market.WithConfirmTimeout(5*time.Second))
	f.as(f.verifier)
	return f
}

// as connects the given account.
func (f *fixture) as(s carbon.TxSigner) {
	c := carbon.Bind(f.sim.Address(), f.sim, s, simulated.DefaultChainID, carbon.WithPollInterval(time.Millisecond))
	f.src.set(session.Session{Account: s.Address(), ChainID: simulated.DefaultChainID, Contract: c, State: session.Connected})
}

func (f *fixture) mintTo(t *testing.T, to common.Address, project string, tonnes int64) *big.Int {
	t.Helper()
	f.as(f.verifier)
	res, err := f.actions.Mint(context.Background(), market.MintRequest{
		Recipient:    to.Hex(),
		CarbonAmount: big.NewInt(tonnes),
		ProjectName:  project,
		Location:     "Brazil",
		Expiry:       time.Now().Add(365 * 24 * time.Hour),
		Description:  "desc",
	})
	require.NoError(t, err)
	require.NotNil(t, res.TokenID)
	return res.TokenID
}

func ids(credits []market.Credit) []int64 {
	out := make([]int64, 0, len(credits))
	for _, c := range credits {
		out = append(out, c.TokenID.Int64())
	}
	return out
}

func titles(q *notify.Queue) []notify.Kind {
	out := []notify.Kind{}
	for _, n := range q.Items() {
		out = append(out, n.Kind)
	}
	return out
}

func TestMintScenario(t *testing.T) {
	f := newFixture(t)
	id := f.mintTo(t, f.alice.Address(), "Forest", 100)
	assert.Equal(t, int64(0), id.Int64(), "token ids start at 0")

	owned, err := f.repo.ListOwned(context.Background(), f.alice.Address())
	require.NoError(t, err)
	require.Len(t, owned, 1)
	c := owned[0]
	assert.Equal(t, int64(100), c.CarbonAmount.Int64())
	assert.Equal(t, "Forest", c.ProjectName)
	assert.Equal(t, "Brazil", c.Location)
	assert.False(t, c.IsForSale)
	assert.False(t, c.IsRetired)
	assert.True(t, c.ExpiryDate.After(c.IssuanceDate))
	assert.Equal(t, f.verifier.Address(), c.Verifier)

	meta, ok := c.Metadata()
	require.True(t, ok, "default publisher embeds metadata")
	assert.Equal(t, "Forest Carbon Credit", meta.Name)
	assert.Equal(t, "Brazil", meta.Attribute("Location"))

	assert.Equal(t, []notify.Kind{notify.KindInfo, notify.KindInfo, notify.KindSuccess}, titles(f.queue))
}

func TestMintDefaultsRecipientToAccount(t *testing.T) {
	f := newFixture(t)
	res, err := f.actions.Mint(context.Background(), market.MintRequest{
		CarbonAmount: big.NewInt(5),
		ProjectName:  "Solar",
		Location:     "India",
		Expiry:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	owner, err := f.repo.Owner(context.Background(), res.TokenID)
	require.NoError(t, err)
	assert.Equal(t, f.verifier.Address(), owner)
}

func TestMintValidation(t *testing.T) {
	f := newFixture(t)
	future := time.Now().Add(time.Hour)
	cases := map[string]market.MintRequest{
		"zero amount":     {CarbonAmount: big.NewInt(0), ProjectName: "P", Location: "L", Expiry: future},
		"nil amount":      {ProjectName: "P", Location: "L", Expiry: future},
		"negative amount": {CarbonAmount: big.NewInt(-1), ProjectName: "P", Location: "L", Expiry: future},
		"blank project":   {CarbonAmount: big.NewInt(1), ProjectName: "  ", Location: "L", Expiry: future},
		"blank location":  {CarbonAmount: big.NewInt(1), ProjectName: "P", Expiry: future},
		"past expiry":     {CarbonAmount: big.NewInt(1), ProjectName: "P", Location: "L", Expiry: time.Now().Add(-time.Hour)},
		"bad recipient":   {Recipient: "0x12", CarbonAmount: big.NewInt(1), ProjectName: "P", Location: "L", Expiry: future},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.actions.Mint(context.Background(), req)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}
	assert.Empty(t, f.queue.Items(), "validation never notifies")
	assert.Zero(t, f.sim.Pending())
}

func TestExpiryMustBeStrictlyInFuture(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t)
	actions := market.NewActions(f.src, f.repo, f.view, nil, market.WithActionsClock(func() time.Time { return now }))
	_, err := actions.Mint(context.Background(), market.MintRequest{
		CarbonAmount: big.NewInt(1), ProjectName: "P", Location: "L", Expiry: now,
	})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestUnauthorizedMintIsTransactionError(t *testing.T) {
	f := newFixture(t)
	f.as(f.alice)
	_, err := f.actions.Mint(context.Background(), market.MintRequest{
		CarbonAmount: big.NewInt(1), ProjectName: "P", Location: "L", Expiry: time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, errs.ErrNotAuthorized)

	items := f.queue.Items()
	require.Len(t, items, 2)
	assert.Equal(t, notify.KindError, items[1].Kind)
	assert.Contains(t, items[1].Message, "Not authorized")
}

func TestListBuyScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mintTo(t, f.alice.Address(), "Forest", 100)

	f.as(f.alice)
	_, err := f.actions.ListForSale(ctx, id, "0.1")
	require.NoError(t, err)

	snap := f.view.Snapshot()
	require.Equal(t, []int64{id.Int64()}, ids(snap.ForSale))
	listed := snap.ForSale[0]
	assert.True(t, listed.IsForSale)
	assert.Equal(t, "100000000000000000", listed.Price.String())
	assert.Equal(t, []int64{id.Int64()}, ids(snap.Owned), "both halves refreshed")

	f.as(f.bob)
	res, err := f.actions.Purchase(ctx, id, listed.Price)
	require.NoError(t, err)
	assert.NotZero(t, res.BlockNumber)

	aliceOwned, err := f.repo.ListOwned(ctx, f.alice.Address())
	require.NoError(t, err)
	assert.Empty(t, aliceOwned)

	bobOwned, err := f.repo.ListOwned(ctx, f.bob.Address())
	require.NoError(t, err)
	require.Len(t, bobOwned, 1)
	assert.False(t, bobOwned[0].IsForSale)

	snap = f.view.Snapshot()
	assert.Empty(t, snap.ForSale)
	assert.Equal(t, f.bob.Address(), snap.Account)
}

func TestListPriceRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mintTo(t, f.alice.Address(), "Wind", 10)
	f.as(f.alice)

	cases := []struct{ price, wei string }{
		{"0.000000000000000001", "1"},
		{"1.5", "1500000000000000000"},
		{"42", "42000000000000000000"},
	}
	for _, tc := range cases {
		_, err := f.actions.ListForSale(ctx, id, tc.price)
		require.NoError(t, err)
		c, err := f.repo.Credit(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, tc.wei, c.Price.String(), "price %s", tc.price)
		assert.True(t, c.IsForSale)
	}
}

func TestListValidation(t *testing.T) {
	f := newFixture(t)
	for _, p := range []string{"", "0", "-1", "abc", "1e18", "0.0000000000000000001"} {
		_, err := f.actions.ListForSale(context.Background(), big.NewInt(0), p)
		assert.ErrorIs(t, err, errs.ErrValidation, "price %q", p)
	}
	_, err := f.actions.ListForSale(context.Background(), big.NewInt(-1), "1")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.actions.ListForSale(context.Background(), nil, "1")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestListNotOwner(t *testing.T) {
	f := newFixture(t)
	id := f.mintTo(t, f.alice.Address(), "Forest", 1)
	f.as(f.bob)
	_, err := f.actions.ListForSale(context.Background(), id, "1")
	assert.ErrorIs(t, err, errs.ErrNotOwner)
}

func TestPurchaseWithStalePriceIsBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mintTo(t, f.alice.Address(), "Forest", 1)
	f.as(f.alice)
	_, err := f.actions.ListForSale(ctx, id, "1")
	require.NoError(t, err)
	displayed := f.view.Snapshot().ForSale[0].Price

	_, err = f.actions.ListForSale(ctx, id, "2")
	require.NoError(t, err)

	f.as(f.bob)
	before := f.sim.Pending()
	_, err = f.actions.Purchase(ctx, id, displayed)
	assert.ErrorIs(t, err, errs.ErrPriceChanged)
	assert.Equal(t, before, f.sim.Pending())

	owner, err := f.repo.Owner(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, f.alice.Address(), owner, "nothing changed hands")
}

func TestPurchaseNotForSale(t *testing.T) {
	f := newFixture(t)
	id := f.mintTo(t, f.alice.Address(), "Forest", 1)
	f.as(f.bob)
	_, err := f.actions.Purchase(context.Background(), id, simulated.Ether(1))
	assert.ErrorIs(t, err, errs.ErrNotForSale)
	assert.Equal(t, notify.KindError, f.queue.Items()[len(f.queue.Items())-1].Kind)
}

func TestPurchaseValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.actions.Purchase(context.Background(), big.NewInt(0), big.NewInt(0))
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.actions.Purchase(context.Background(), big.NewInt(0), nil)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestConcurrentPurchaseOneLoses(t *testing.T) {
	f := newFixture(t, simulated.WithManualMining())
	ctx := context.Background()

	// Mint and list with manual mining: mine each step explicitly.
	f.as(f.verifier)
	tx, err := f.src.Current().Contract.Mint(ctx, carbon.MintParams{
		To: f.alice.Address(), CarbonAmount: big.NewInt(1), ProjectName: "Race", Location: "X",
		ExpiryDate: big.NewInt(time.Now().Add(time.Hour).Unix()), TokenURI: "ipfs://x",
	})
	require.NoError(t, err)
	f.sim.Mine()
	_, err = f.src.Current().Contract.WaitMined(ctx, tx)
	require.NoError(t, err)

	f.as(f.alice)
	tx, err = f.src.Current().Contract.ListForSale(ctx, big.NewInt(0), simulated.Ether(1))
	require.NoError(t, err)
	f.sim.Mine()
	_, err = f.src.Current().Contract.WaitMined(ctx, tx)
	require.NoError(t, err)

	// Two buyers with their own sessions race for the same token.
	buyers := []*simulated.KeySigner{f.bob, f.verifier}
	results := make([]error, len(buyers))
	var wg sync.WaitGroup
	for i, b := range buyers {
		i, b := i, b
		src := &source{}
		c := carbon.Bind(f.sim.Address(), f.sim, b, simulated.DefaultChainID, carbon.WithPollInterval(time.Millisecond))
		src.set(session.Session{Account: b.Address(), Contract: c, State: session.Connected, ChainID: simulated.DefaultChainID})
		repo := market.NewRepository(src)
		a := market.NewActions(src, repo, market.NewView(repo, src), f.queue)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = a.Purchase(ctx, big.NewInt(0), simulated.Ether(1))
		}()
	}
	require.Eventually(t, func() bool { return f.sim.Pending() == 2 }, 2*time.Second, time.Millisecond)
	f.sim.Mine()
	wg.Wait()

	failures := 0
	for _, err := range results {
		if err != nil {
			failures++
			assert.ErrorIs(t, err, errs.ErrTransaction)
			assert.ErrorIs(t, err, errs.ErrNotForSale)
		}
	}
	assert.Equal(t, 1, failures, "exactly one purchase wins")
}

func TestRetireScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mintTo(t, f.alice.Address(), "Forest", 1)
	f.as(f.alice)
	_, err := f.actions.ListForSale(ctx, id, "1")
	require.NoError(t, err)

	_, err = f.actions.Retire(ctx, id)
	require.NoError(t, err)

	forSale, err := f.repo.ListForSale(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids(forSale), id.Int64())

	c, err := f.repo.Credit(ctx, id)
	require.NoError(t, err)
	assert.True(t, c.IsRetired)
	assert.False(t, c.IsForSale)

	// Terminal: cannot be listed or retired again.
	_, err = f.actions.ListForSale(ctx, id, "1")
	assert.ErrorIs(t, err, errs.ErrTransaction)
	_, err = f.actions.Retire(ctx, id)
	assert.ErrorIs(t, err, errs.ErrAlreadyRetired)

	forSale, err = f.repo.ListForSale(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids(forSale), id.Int64())
}

func TestRetireDropsListingFromView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mintTo(t, f.alice.Address(), "Forest", 1)
	other := f.mintTo(t, f.alice.Address(), "Mangrove", 2)
	f.as(f.alice)
	_, err := f.actions.ListForSale(ctx, id, "1")
	require.NoError(t, err)
	_, err = f.actions.ListForSale(ctx, other, "2")
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{id.Int64(), other.Int64()}, ids(f.view.Snapshot().ForSale))

	var seen []market.Snapshot
	unsub := f.view.Subscribe(func(s market.Snapshot) { seen = append(seen, s) })
	defer unsub()

	_, err = f.actions.Retire(ctx, id)
	require.NoError(t, err)

	snap := f.view.Snapshot()
	assert.Equal(t, []int64{other.Int64()}, ids(snap.ForSale), "retired credit is no longer offered")
	require.NotEmpty(t, seen)
	assert.Equal(t, []int64{other.Int64()}, ids(seen[len(seen)-1].ForSale))
	for _, c := range snap.Owned {
		if c.TokenID.Cmp(id) == 0 {
			assert.True(t, c.IsRetired)
		}
	}
}

func TestRefreshFailureAfterConfirmedRetireWarns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mintTo(t, f.alice.Address(), "Forest", 1)
	f.as(f.alice)

	f.sim.FailCalls(carbon.MethodTokensByOwner, errors.New("rpc down"))
	defer f.sim.FailCalls(carbon.MethodTokensByOwner, nil)

	res, err := f.actions.Retire(ctx, id)
	require.NoError(t, err, "the transaction itself confirmed")
	require.Error(t, res.RefreshErr)
	assert.NotZero(t, res.BlockNumber)

	items := f.queue.Items()
	require.GreaterOrEqual(t, len(items), 2)
	warn, done := items[len(items)-2], items[len(items)-1]
	assert.Equal(t, notify.KindWarning, warn.Kind)
	assert.Equal(t, "Retiring credit", warn.Title)
	assert.Contains(t, warn.Message, "reloading the market failed")
	assert.Contains(t, warn.Message, "rpc down")
	assert.Equal(t, notify.KindSuccess, done.Kind)

	c, err := f.repo.Credit(ctx, id)
	require.NoError(t, err)
	assert.True(t, c.IsRetired)
}

func TestUnlist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mintTo(t, f.alice.Address(), "Forest", 1)
	f.as(f.alice)
	_, err := f.actions.ListForSale(ctx, id, "1")
	require.NoError(t, err)
	require.Len(t, f.view.Snapshot().ForSale, 1)

	_, err = f.actions.Unlist(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, f.view.Snapshot().ForSale)
}

func TestAddVerifier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.actions.AddVerifier(ctx, "nope")
	assert.ErrorIs(t, err, errs.ErrValidation)

	f.as(f.alice)
	_, err = f.actions.AddVerifier(ctx, f.bob.Address().Hex())
	assert.ErrorIs(t, err, errs.ErrNotOwner)

	f.as(f.verifier)
	_, err = f.actions.AddVerifier(ctx, f.bob.Address().Hex())
	require.NoError(t, err)

	f.as(f.bob)
	_, err = f.actions.Mint(ctx, market.MintRequest{
		CarbonAmount: big.NewInt(3), ProjectName: "New", Location: "Kenya", Expiry: time.Now().Add(time.Hour),
	})
	assert.NoError(t, err)
}

func TestListOwnedMatchesOwnerOf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accounts := []*simulated.KeySigner{f.verifier, f.alice, f.bob}
	for i := 0; i < 6; i++ {
		f.mintTo(t, accounts[i%3].Address(), "P", int64(i+1))
	}
	f.as(f.alice)
	_, err := f.actions.ListForSale(ctx, big.NewInt(1), "1")
	require.NoError(t, err)
	f.as(f.bob)
	_, err = f.actions.Purchase(ctx, big.NewInt(1), simulated.Ether(1))
	require.NoError(t, err)
	_, err = f.actions.Retire(ctx, big.NewInt(2))
	require.NoError(t, err)

	for _, acct := range accounts {
		owned, err := f.repo.ListOwned(ctx, acct.Address())
		require.NoError(t, err)
		for id := int64(0); id < 6; id++ {
			owner, err := f.repo.Owner(ctx, big.NewInt(id))
			require.NoError(t, err)
			if owner == acct.Address() {
				assert.Contains(t, ids(owned), id)
			} else {
				assert.NotContains(t, ids(owned), id)
			}
		}
	}
}

func TestListOwnedZeroAccount(t *testing.T) {
	f := newFixture(t)
	f.src.set(session.Session{})
	owned, err := f.repo.ListOwned(context.Background(), common.Address{})
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestQueriesRequireConnection(t *testing.T) {
	f := newFixture(t)
	f.src.set(session.Session{})

	_, err := f.repo.ListForSale(context.Background())
	assert.ErrorIs(t, err, errs.ErrEnvironment)
	assert.ErrorIs(t, err, errs.ErrNotConnected)

	_, err = f.actions.Retire(context.Background(), big.NewInt(0))
	assert.ErrorIs(t, err, errs.ErrNotConnected)

	err = f.view.Refresh(context.Background(), market.ScopeAll)
	assert.ErrorIs(t, err, errs.ErrNotConnected)
	assert.Error(t, f.view.Snapshot().Err)
}

func TestHydrationFailureFailsBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		id := f.mintTo(t, f.alice.Address(), "P", 1)
		f.as(f.alice)
		_, err := f.actions.ListForSale(ctx, id, "1")
		require.NoError(t, err)
	}

	f.sim.FailCalls(carbon.MethodTokenURI, errors.New("rpc timeout"))
	credits, err := f.repo.ListForSale(ctx)
	assert.ErrorIs(t, err, errs.ErrQuery)
	assert.Nil(t, credits, "no partial lists")

	err = f.view.Refresh(ctx, market.ScopeForSale)
	assert.ErrorIs(t, err, errs.ErrQuery)
	snap := f.view.Snapshot()
	assert.Empty(t, snap.ForSale)
	assert.ErrorIs(t, snap.Err, errs.ErrQuery)

	f.sim.FailCalls(carbon.MethodTokenURI, nil)
	require.NoError(t, f.view.Refresh(ctx, market.ScopeForSale))
	assert.Len(t, f.view.Snapshot().ForSale, 3)
	assert.NoError(t, f.view.Snapshot().Err)
}

func TestForSaleKeepsContractOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.mintTo(t, f.alice.Address(), "P", 1)
	}
	f.as(f.alice)
	for _, id := range []int64{3, 0, 4, 1} {
		_, err := f.actions.ListForSale(ctx, big.NewInt(id), "1")
		require.NoError(t, err)
	}
	raw, err := f.src.Current().Contract.TokensForSale(ctx)
	require.NoError(t, err)

	credits, err := f.repo.ListForSale(ctx)
	require.NoError(t, err)
	want := make([]int64, 0, len(raw))
	for _, id := range raw {
		want = append(want, id.Int64())
	}
	assert.Equal(t, want, ids(credits))
}

func TestRateLimitedRepository(t *testing.T) {
	f := newFixture(t)
	f.mintTo(t, f.alice.Address(), "P", 1)
	repo := market.NewRepository(f.src, market.WithRateLimit(1000), market.WithConcurrency(1))
	owned, err := repo.ListOwned(context.Background(), f.alice.Address())
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := market.NewRepository(f.src, market.WithRateLimit(0.001))
	_, _ = slow.ListForSale(context.Background()) // drains the single token
	_, err = slow.ListForSale(ctx)
	assert.ErrorIs(t, err, errs.ErrQuery)
}

func TestViewSubscribeAndAccountSwitch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mintTo(t, f.alice.Address(), "P", 1)

	var got []market.Snapshot
	unsub := f.view.Subscribe(func(s market.Snapshot) { got = append(got, s) })
	defer unsub()

	f.as(f.alice)
	require.NoError(t, f.view.Refresh(ctx, market.ScopeOwned))
	assert.Len(t, f.view.Snapshot().Owned, 1)

	f.as(f.bob)
	require.NoError(t, f.view.Refresh(ctx, market.ScopeForSale))
	assert.Empty(t, f.view.Snapshot().Owned, "owned half of another account is dropped")
	assert.Equal(t, f.bob.Address(), f.view.Snapshot().Account)
	assert.Len(t, got, 2)

	f.view.Clear()
	assert.Empty(t, f.view.Snapshot().ForSale)
	assert.NoError(t, f.view.Refresh(ctx, market.ScopeNone))
}

// sessionFeed publishes sessions the test pushes.
type sessionFeed struct {
	reg listen.Registry[session.Session]
}

func (f *sessionFeed) Subscribe(fn func(session.Session)) func() { return f.reg.Add(fn) }

func TestViewClearsOnDisconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mintTo(t, f.alice.Address(), "P", 1)
	f.as(f.alice)
	_, err := f.actions.ListForSale(ctx, id, "1")
	require.NoError(t, err)
	require.Len(t, f.view.Snapshot().ForSale, 1)

	feed := &sessionFeed{}
	unsub := f.view.ClearOnDisconnect(feed)

	feed.reg.Emit(session.Session{State: session.Connecting})
	assert.Len(t, f.view.Snapshot().ForSale, 1, "only a disconnect clears")

	feed.reg.Emit(session.Session{State: session.Disconnected})
	snap := f.view.Snapshot()
	assert.Empty(t, snap.ForSale)
	assert.Empty(t, snap.Owned)
	assert.Zero(t, snap.Account)

	require.NoError(t, f.view.Refresh(ctx, market.ScopeAll))
	unsub()
	feed.reg.Emit(session.Session{State: session.Disconnected})
	assert.Len(t, f.view.Snapshot().ForSale, 1)
}

func TestStats(t *testing.T) {
	now := time.Now()
	c := func(id, tonnes int64, price int64, forSale, retired bool, expiry time.Time) market.Credit {
		return market.Credit{
			TokenID: big.NewInt(id), CarbonAmount: big.NewInt(tonnes), Price: big.NewInt(price),
			IsForSale: forSale, IsRetired: retired, ExpiryDate: expiry,
		}
	}
	future := now.Add(time.Hour)
	snap := market.Snapshot{
		ForSale: []market.Credit{c(0, 100, 10, true, false, future), c(1, 50, 30, true, false, future)},
		Owned:   []market.Credit{c(1, 50, 30, true, false, future), c(2, 25, 0, false, true, now.Add(-time.Hour))},
	}
	st := market.ComputeStats(snap, now)
	assert.Equal(t, 3, st.Credits)
	assert.Equal(t, 2, st.ForSale)
	assert.Equal(t, 2, st.Owned)
	assert.Equal(t, 1, st.Retired)
	assert.Equal(t, 1, st.Expired)
	assert.Equal(t, int64(175), st.TotalTonnes.Int64())
	assert.Equal(t, int64(40), st.ListedVolume.Int64())
	assert.Equal(t, int64(20), st.AveragePrice.Int64())

	empty := market.ComputeStats(market.Snapshot{}, now)
	assert.Zero(t, empty.Credits)
	assert.Zero(t, empty.AveragePrice.Sign())
}
