// Package rpc chooses which JSON-RPC endpoint of a network to dial.
package rpc

import (
	"errors"
	"time"
)

// ErrNoHealthyRPC is returned when no endpoint answered the benchmark.
var ErrNoHealthyRPC = errors.New("no healthy RPC endpoint available")

// Algorithm defines how an RPC endpoint is selected.
type Algorithm string

const (
	AlgorithmFastest  Algorithm = "fastest"
	AlgorithmFailover Algorithm = "failover"

	// Discard nodes more than this many blocks behind the best.
	staleBlockThreshold = 3
)

// Endpoint is one benchmarked RPC URL.
type Endpoint struct {
	URL         string
	Latency     time.Duration
	BlockNumber uint64
	Err         error
}

// Healthy reports whether the endpoint answered its ping.
func (e Endpoint) Healthy() bool { return e.Err == nil }

// Pick selects an endpoint according to algo. Failover takes the first
// healthy endpoint in list order. Fastest drops stale nodes and scores the
// rest on latency and block recency.
func Pick(algo Algorithm, endpoints []Endpoint) (Endpoint, error) {
	if algo == AlgorithmFailover {
		for _, e := range endpoints {
			if e.Healthy() {
				return e, nil
			}
		}
		return Endpoint{}, ErrNoHealthyRPC
	}

	var bestBlock uint64
	for _, e := range endpoints {
		if e.Healthy() && e.BlockNumber > bestBlock {
			bestBlock = e.BlockNumber
		}
	}

	var (
		winner    Endpoint
		bestScore float64
		found     bool
	)
	for _, e := range endpoints {
		if !e.Healthy() {
			continue
		}
		if bestBlock-e.BlockNumber > staleBlockThreshold {
			continue
		}
		s := score(e, bestBlock)
		if !found || s > bestScore {
			winner, bestScore, found = e, s, true
		}
	}
	if !found {
		return Endpoint{}, ErrNoHealthyRPC
	}
	return winner, nil
}

func score(e Endpoint, bestBlock uint64) float64 {
	var s float64
	if ms := e.Latency.Milliseconds(); ms > 0 {
		s += 1000.0 / float64(ms)
	} else {
		s += 1000.0
	}
	// loses 1 point per block behind
	s += float64(staleBlockThreshold) - float64(bestBlock-e.BlockNumber)
	return s
}
