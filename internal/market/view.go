package market

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Mohsinsiddi/w3carbon/internal/errs"
	"github.com/Mohsinsiddi/w3carbon/internal/listen"
	"github.com/Mohsinsiddi/w3carbon/internal/session"
)

// Scope selects which halves of the snapshot a refresh re-reads.
type Scope uint8

const (
	ScopeForSale Scope = 1 << iota
	ScopeOwned

	ScopeNone Scope = 0
	ScopeAll        = ScopeForSale | ScopeOwned
)

func (s Scope) String() string {
	switch s {
	case ScopeNone:
		return "none"
	case ScopeForSale:
		return "for-sale"
	case ScopeOwned:
		return "owned"
	case ScopeAll:
		return "all"
	}
	return "unknown"
}

// Snapshot is the last read state of the market.
type Snapshot struct {
	ForSale   []Credit
	Owned     []Credit
	Account   common.Address
	UpdatedAt time.Time
	Err       error
}

// Refresher re-reads parts of the market.
type Refresher interface {
	Refresh(ctx context.Context, scope Scope) error
}

// View keeps the current Snapshot. Concurrent refreshes are allowed; the
// last one to finish wins.
type View struct {
	repo *Repository
	src  SessionSource
	now  func() time.Time
	log  zerolog.Logger

	mu   sync.RWMutex
	snap Snapshot
	subs listen.Registry[Snapshot]
}

// ViewOption configures a View.
type ViewOption func(*View)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ViewOption { return func(v *View) { v.now = now } }

// WithViewLogger attaches a logger.
func WithViewLogger(l zerolog.Logger) ViewOption { return func(v *View) { v.log = l } }

// NewView returns an empty View over repo.
func NewView(repo *Repository, src SessionSource, opts ...ViewOption) *View {
	v := &View{repo: repo, src: src, now: time.Now, log: zerolog.Nop()}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Snapshot returns the current snapshot.
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snap
}

// Stats derives aggregates from the current snapshot.
func (v *View) Stats() Stats {
	return ComputeStats(v.Snapshot(), v.now())
}

// Subscribe registers fn for every snapshot replacement.
func (v *View) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return v.subs.Add(fn)
}

// Refresh re-reads the halves named by scope and swaps them in. A failed
// half is emptied and the error recorded in the snapshot.
func (v *View) Refresh(ctx context.Context, scope Scope) error {
	const op = "market.Refresh"
	if scope == ScopeNone {
		return nil
	}
	sess := v.src.Current()
	if !sess.Connected() {
		err := errs.Environment(op, errs.ErrNotConnected)
		v.store(Snapshot{UpdatedAt: v.now(), Err: err})
		return err
	}

	var (
		forSale, owned       []Credit
		forSaleErr, ownedErr error
	)
	var g errgroup.Group
	if scope&ScopeForSale != 0 {
		g.Go(func() error {
			forSale, forSaleErr = v.repo.ListForSale(ctx)
			return nil
		})
	}
	if scope&ScopeOwned != 0 {
		g.Go(func() error {
			owned, ownedErr = v.repo.ListOwned(ctx, sess.Account)
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	err := forSaleErr
	if err == nil {
		err = ownedErr
	}

	v.mu.Lock()
	next := v.snap
	if next.Account != sess.Account {
		next.Owned = nil
	}
	next.Account = sess.Account
	if scope&ScopeForSale != 0 {
		next.ForSale = forSale
	}
	if scope&ScopeOwned != 0 {
		next.Owned = owned
	}
	next.UpdatedAt = v.now()
	next.Err = err
	v.snap = next
	v.mu.Unlock()
	v.subs.Emit(next)

	if err != nil {
		v.log.Warn().Err(err).Stringer("scope", scope).Msg("refresh failed")
		return err
	}
	v.log.Debug().Stringer("scope", scope).Int("forSale", len(next.ForSale)).
		Int("owned", len(next.Owned)).Msg("market refreshed")
	return nil
}

// DropListing removes tokenID from the for-sale half without a reload.
func (v *View) DropListing(tokenID *big.Int) {
	v.mu.Lock()
	next := v.snap
	kept := make([]Credit, 0, len(next.ForSale))
	for _, c := range next.ForSale {
		if c.TokenID.Cmp(tokenID) != 0 {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(next.ForSale) {
		v.mu.Unlock()
		return
	}
	next.ForSale = kept
	v.snap = next
	v.mu.Unlock()
	v.subs.Emit(next)
}

// Clear empties the snapshot.
func (v *View) Clear() {
	v.store(Snapshot{UpdatedAt: v.now()})
}

// SessionFeed publishes session changes.
type SessionFeed interface {
	Subscribe(fn func(session.Session)) (unsubscribe func())
}

// ClearOnDisconnect empties the view whenever feed reports a disconnected
// session, so nothing read for the old account stays on screen.
func (v *View) ClearOnDisconnect(feed SessionFeed) (unsubscribe func()) {
	return feed.Subscribe(func(s session.Session) {
		if s.State == session.Disconnected {
			v.Clear()
		}
	})
}

func (v *View) store(s Snapshot) {
	v.mu.Lock()
	v.snap = s
	v.mu.Unlock()
	v.subs.Emit(s)
}
