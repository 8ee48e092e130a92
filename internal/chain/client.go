// Package chain holds the network registry and the thin layer over
// go-ethereum's ethclient used by the rest of the module: dialing, health
// pings, receipt polling, revert decoding and ether unit conversion.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client is an ethclient bound to the URL it was dialed with.
type Client struct {
	*ethclient.Client
	URL string
}

// Dial connects to an EVM JSON-RPC endpoint (http, ws or ipc).
func Dial(ctx context.Context, url string) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return &Client{Client: ethclient.NewClient(rc), URL: url}, nil
}

// Ping fetches the latest block number and measures the round trip.
func (c *Client) Ping(ctx context.Context) (latency time.Duration, blockNum uint64, err error) {
	start := time.Now()
	blockNum, err = c.BlockNumber(ctx)
	latency = time.Since(start)
	if err != nil {
		return latency, 0, err
	}
	return latency, blockNum, nil
}
