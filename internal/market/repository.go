package market

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Mohsinsiddi/w3carbon/internal/carbon"
	"github.com/Mohsinsiddi/w3carbon/internal/errs"
)

// DefaultConcurrency bounds parallel token hydration.
const DefaultConcurrency = 8

// Repository answers read queries against the bound contract. Every call
// goes to the chain; nothing is cached.
type Repository struct {
	src         SessionSource
	concurrency int
	limiter     *rate.Limiter
	log         zerolog.Logger
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithConcurrency sets how many tokens are hydrated at once.
func WithConcurrency(n int) RepositoryOption {
	return func(r *Repository) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRateLimit caps contract calls per second. Zero disables the limit.
func WithRateLimit(perSecond float64) RepositoryOption {
	return func(r *Repository) {
		if perSecond <= 0 {
			r.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRepositoryLogger attaches a logger.
func WithRepositoryLogger(l zerolog.Logger) RepositoryOption {
	return func(r *Repository) { r.log = l }
}

// NewRepository reads through whatever contract src currently has bound.
func NewRepository(src SessionSource, opts ...RepositoryOption) *Repository {
	r := &Repository{src: src, concurrency: DefaultConcurrency, log: zerolog.Nop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ListForSale returns every credit currently for sale, in contract order.
func (r *Repository) ListForSale(ctx context.Context) ([]Credit, error) {
	const op = "market.ListForSale"
	c, err := r.contract(op)
	if err != nil {
		return nil, err
	}
	if err := r.wait(ctx); err != nil {
		return nil, errs.Query(op, err)
	}
	ids, err := c.TokensForSale(ctx)
	if err != nil {
		return nil, errs.Query(op, err)
	}
	credits, err := r.hydrate(ctx, c, ids)
	if err != nil {
		return nil, errs.Query(op, err)
	}
	r.log.Debug().Int("count", len(credits)).Msg("loaded market")
	return credits, nil
}

// ListOwned returns the credits owned by account. A zero account yields
// an empty list without touching the network.
func (r *Repository) ListOwned(ctx context.Context, account common.Address) ([]Credit, error) {
	const op = "market.ListOwned"
	if account == (common.Address{}) {
		return []Credit{}, nil
	}
	c, err := r.contract(op)
	if err != nil {
		return nil, err
	}
	if err := r.wait(ctx); err != nil {
		return nil, errs.Query(op, err)
	}
	ids, err := c.TokensByOwner(ctx, account)
	if err != nil {
		return nil, errs.Query(op, err)
	}
	credits, err := r.hydrate(ctx, c, ids)
	if err != nil {
		return nil, errs.Query(op, err)
	}
	r.log.Debug().Str("account", account.Hex()).Int("count", len(credits)).Msg("loaded owned credits")
	return credits, nil
}

// Credit hydrates a single token.
func (r *Repository) Credit(ctx context.Context, tokenID *big.Int) (Credit, error) {
	const op = "market.Credit"
	c, err := r.contract(op)
	if err != nil {
		return Credit{}, err
	}
	credit, err := r.one(ctx, c, tokenID)
	if err != nil {
		return Credit{}, errs.Query(op, err)
	}
	return credit, nil
}

// Owner returns the current owner of a token.
func (r *Repository) Owner(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	const op = "market.Owner"
	c, err := r.contract(op)
	if err != nil {
		return common.Address{}, err
	}
	if err := r.wait(ctx); err != nil {
		return common.Address{}, errs.Query(op, err)
	}
	owner, err := c.OwnerOf(ctx, tokenID)
	if err != nil {
		return common.Address{}, errs.Query(op, err)
	}
	return owner, nil
}

// hydrate fetches struct and URI for every id. Any failure fails the
// whole batch; results keep the order of ids.
func (r *Repository) hydrate(ctx context.Context, c *carbon.Contract, ids []*big.Int) ([]Credit, error) {
	out := make([]Credit, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			credit, err := r.one(gctx, c, id)
			if err != nil {
				return err
			}
			out[i] = credit
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) one(ctx context.Context, c *carbon.Contract, id *big.Int) (Credit, error) {
	if err := r.wait(ctx); err != nil {
		return Credit{}, err
	}
	rec, err := c.Credit(ctx, id)
	if err != nil {
		return Credit{}, err
	}
	if err := r.wait(ctx); err != nil {
		return Credit{}, err
	}
	uri, err := c.TokenURI(ctx, id)
	if err != nil {
		return Credit{}, err
	}
	return creditFromRecord(rec, uri), nil
}

func (r *Repository) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

func (r *Repository) contract(op string) (*carbon.Contract, error) {
	s := r.src.Current()
	if !s.Connected() {
		return nil, errs.Environment(op, errs.ErrNotConnected)
	}
	return s.Contract, nil
}
