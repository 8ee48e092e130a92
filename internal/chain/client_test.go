package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcMock creates a test HTTP server that returns canned JSON-RPC results.
func rpcMock(t *testing.T, responses map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			ID     json.RawMessage `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if result, ok := responses[req.Method]; ok {
			json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result":  result,
			})
		} else {
			json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
				"jsonrpc": "2.0",
				"id":      req.ID,
				"error":   map[string]interface{}{"code": -32601, "message": "method not found"},
			})
		}
	}))
}

func TestDialAndPing(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{"eth_blockNumber": "0x1b4"})
	defer srv.Close()

	c, err := Dial(context.Background(), srv.URL)
	require.NoError(t, err)
	defer c.Close()

	latency, block, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(436), block)
	assert.GreaterOrEqual(t, latency, time.Duration(0))
	assert.Equal(t, srv.URL, c.URL)
}

func TestPingError(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{})
	defer srv.Close()

	c, err := Dial(context.Background(), srv.URL)
	require.NoError(t, err)
	_, _, err = c.Ping(context.Background())
	assert.Error(t, err)
}

func TestChainIDOverMock(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{"eth_chainId": "0x7a69"})
	defer srv.Close()

	c, err := Dial(context.Background(), srv.URL)
	require.NoError(t, err)
	id, err := c.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, LocalChainID, id.Int64())
}

// ---------------------------------------------------------------------------
// WaitForReceipt
// ---------------------------------------------------------------------------

type scriptedReceipts struct {
	calls   atomic.Int32
	pending int32
	receipt *types.Receipt
	err     error
}

func (s *scriptedReceipts) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if n <= s.pending {
		return nil, ethereum.NotFound
	}
	return s.receipt, nil
}

func TestWaitForReceiptPollsUntilMined(t *testing.T) {
	r := &scriptedReceipts{pending: 2, receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}
	got, err := WaitForReceipt(context.Background(), r, common.HexToHash("0x01"), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, got.Status)
	assert.Equal(t, int32(3), r.calls.Load())
}

func TestWaitForReceiptReverted(t *testing.T) {
	r := &scriptedReceipts{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}}
	got, err := WaitForReceipt(context.Background(), r, common.HexToHash("0x02"), time.Millisecond)
	assert.ErrorIs(t, err, ErrReverted)
	require.NotNil(t, got)
}

func TestWaitForReceiptContextDone(t *testing.T) {
	r := &scriptedReceipts{pending: 1 << 30}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := WaitForReceipt(ctx, r, common.HexToHash("0x03"), time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForReceiptRPCError(t *testing.T) {
	boom := errors.New("boom")
	r := &scriptedReceipts{err: boom}
	_, err := WaitForReceipt(context.Background(), r, common.HexToHash("0x04"), time.Millisecond)
	assert.ErrorIs(t, err, boom)
}
