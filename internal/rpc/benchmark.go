package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Mohsinsiddi/w3carbon/internal/chain"
)

// PingFunc measures one endpoint.
type PingFunc func(ctx context.Context, url string) (time.Duration, uint64, error)

// EthPing dials url with ethclient and asks for the latest block.
func EthPing(ctx context.Context, url string) (time.Duration, uint64, error) {
	c, err := chain.Dial(ctx, url)
	if err != nil {
		return 0, 0, err
	}
	defer c.Close()
	return c.Ping(ctx)
}

// Benchmark pings every URL in parallel. Results keep the input order.
func Benchmark(ctx context.Context, urls []string, ping PingFunc, timeout time.Duration) []Endpoint {
	out := make([]Endpoint, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			latency, block, err := ping(pctx, u)
			out[i] = Endpoint{URL: u, Latency: latency, BlockNumber: block, Err: err}
			// A dead endpoint must not cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Selector picks and caches the best endpoint per chain.
type Selector struct {
	algo    Algorithm
	ttl     time.Duration
	timeout time.Duration
	ping    PingFunc
	log     zerolog.Logger

	mu    sync.Mutex
	cache map[int64]cached
}

type cached struct {
	url     string
	expires time.Time
}

// Option configures a Selector.
type Option func(*Selector)

// WithPing replaces the ethclient ping (tests).
func WithPing(p PingFunc) Option { return func(s *Selector) { s.ping = p } }

// WithTTL sets how long a winner is reused before re-benchmarking.
func WithTTL(d time.Duration) Option { return func(s *Selector) { s.ttl = d } }

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Selector) { s.log = l } }

// NewSelector returns a Selector using algo ("" means fastest).
func NewSelector(algo Algorithm, opts ...Option) *Selector {
	if algo == "" {
		algo = AlgorithmFastest
	}
	s := &Selector{
		algo:    algo,
		ttl:     5 * time.Minute,
		timeout: 5 * time.Second,
		ping:    EthPing,
		log:     zerolog.Nop(),
		cache:   make(map[int64]cached),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Best returns the URL to dial for the network. A single URL is returned
// without benchmarking.
func (s *Selector) Best(ctx context.Context, n *chain.Network) (string, error) {
	if len(n.RPCs) == 0 {
		return "", ErrNoHealthyRPC
	}
	if len(n.RPCs) == 1 {
		return n.RPCs[0], nil
	}

	s.mu.Lock()
	if c, ok := s.cache[n.ChainID]; ok && time.Now().Before(c.expires) {
		s.mu.Unlock()
		return c.url, nil
	}
	s.mu.Unlock()

	endpoints := Benchmark(ctx, n.RPCs, s.ping, s.timeout)
	winner, err := Pick(s.algo, endpoints)
	if err != nil {
		return "", err
	}
	s.log.Debug().Str("network", n.Name).Str("rpc", winner.URL).
		Dur("latency", winner.Latency).Msg("selected rpc endpoint")

	s.mu.Lock()
	s.cache[n.ChainID] = cached{url: winner.URL, expires: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return winner.URL, nil
}

// Forget drops the cached winner for a chain, e.g. after a dial failure.
func (s *Selector) Forget(chainID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, chainID)
}
