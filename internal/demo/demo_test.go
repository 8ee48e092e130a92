package demo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3carbon/internal/chain"
	"github.com/Mohsinsiddi/w3carbon/internal/market"
	"github.com/Mohsinsiddi/w3carbon/internal/notify"
	"github.com/Mohsinsiddi/w3carbon/internal/session"
)

func TestSeed(t *testing.T) {
	ctx := context.Background()
	env, err := New(ctx, Options{})
	require.NoError(t, err)
	require.Equal(t, session.Connected, env.Sessions.Current().State)

	require.NoError(t, env.Seed(ctx))

	snap := env.View.Snapshot()
	require.NoError(t, snap.Err)
	assert.Len(t, snap.ForSale, Listed)
	assert.Len(t, snap.Owned, len(Projects))
	assert.Equal(t, Projects[0].Name, snap.ForSale[0].ProjectName)

	stats := env.View.Stats()
	assert.Equal(t, int64(1375), stats.TotalTonnes.Int64())
	want, err := chain.ParseEther("4.0")
	require.NoError(t, err)
	assert.Equal(t, want.String(), stats.ListedVolume.String())
}

func TestBuyAsAnotherAccount(t *testing.T) {
	ctx := context.Background()
	env, err := New(ctx, Options{})
	require.NoError(t, err)
	require.NoError(t, env.Seed(ctx))

	require.NoError(t, env.Use(Alice))
	alice, err := env.Wallets.Get(Alice)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s := env.Sessions.Current()
		return s.Connected() && s.Account == alice.Account()
	}, time.Second, 5*time.Millisecond)

	listed := env.View.Snapshot().ForSale[2]
	_, err = env.Actions.Purchase(ctx, listed.TokenID, listed.Price)
	require.NoError(t, err)

	require.NoError(t, env.View.Refresh(ctx, market.ScopeAll))
	snap := env.View.Snapshot()
	assert.Len(t, snap.ForSale, Listed-1)
	require.Len(t, snap.Owned, 1)
	assert.Equal(t, listed.TokenID.String(), snap.Owned[0].TokenID.String())

	var success bool
	for _, n := range env.Notes.Items() {
		if n.Kind == notify.KindSuccess {
			success = true
		}
	}
	assert.True(t, success)
}

func TestDisconnectClearsView(t *testing.T) {
	ctx := context.Background()
	env, err := New(ctx, Options{})
	require.NoError(t, err)
	require.NoError(t, env.Seed(ctx))
	require.NotEmpty(t, env.View.Snapshot().ForSale)

	env.Sessions.Disconnect()
	snap := env.View.Snapshot()
	assert.Empty(t, snap.ForSale)
	assert.Empty(t, snap.Owned)
}
