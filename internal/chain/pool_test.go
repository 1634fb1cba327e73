package chain

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KostasCherv/lifi-fee-collector/internal/chain/rpc"
	"github.com/KostasCherv/lifi-fee-collector/internal/circuitbreaker"
	"github.com/KostasCherv/lifi-fee-collector/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jsonRPCServer answers both single requests and the batch-array bodies
// GetBlocksByNumber sends, running handler once per request either way.
func jsonRPCServer(t *testing.T, handler func(req rpc.Request) rpc.Response) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var batch []rpc.Request
		if err := json.Unmarshal(body, &batch); err == nil && len(batch) > 0 {
			responses := make([]rpc.Response, len(batch))
			for i, req := range batch {
				responses[i] = handler(req)
			}
			_ = json.NewEncoder(w).Encode(responses)
			return
		}

		var req rpc.Request
		require.NoError(t, json.Unmarshal(body, &req))
		_ = json.NewEncoder(w).Encode(handler(req))
	}))
}

func TestPool_EnsureAndLatestBlock(t *testing.T) {
	orig := retry.BaseDelay
	retry.BaseDelay = time.Millisecond
	defer func() { retry.BaseDelay = orig }()

	srv := jsonRPCServer(t, func(req rpc.Request) rpc.Response {
		return rpc.Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`"0x64"`)}
	})
	defer srv.Close()

	p := NewPool()
	ctx := context.Background()
	require.NoError(t, p.Ensure(ctx, 1, srv.URL, "0xabc", 3))

	latest, err := p.LatestBlock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), latest)
}

func TestPool_EnsureFailsOnUnreachableProbe(t *testing.T) {
	p := NewPool()
	err := p.Ensure(context.Background(), 1, "http://127.0.0.1:0", "0xabc", 3)
	assert.Error(t, err)
}

func TestPool_DropIsNoOpWhenMissing(t *testing.T) {
	p := NewPool()
	p.Drop(999)
}

func TestPool_LatestBlock_UnknownChain(t *testing.T) {
	p := NewPool()
	_, err := p.LatestBlock(context.Background(), 42)
	assert.Error(t, err)
}

func TestPool_LatestBlock_RetriesThenFails(t *testing.T) {
	orig := retry.BaseDelay
	retry.BaseDelay = time.Millisecond
	defer func() { retry.BaseDelay = orig }()

	// The first request is Ensure's eth_blockNumber probe and succeeds;
	// every later request fails and is counted.
	var probed atomic.Bool
	var calls atomic.Int64
	srv := jsonRPCServer(t, func(req rpc.Request) rpc.Response {
		if probed.CompareAndSwap(false, true) {
			return rpc.Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`"0x64"`)}
		}
		calls.Add(1)
		return rpc.Response{JSONRPC: "2.0", ID: req.ID, Error: &rpc.RPCError{Code: -32603, Message: "internal error"}}
	})
	defer srv.Close()

	p := NewPool()
	ctx := context.Background()
	require.NoError(t, p.Ensure(ctx, 1, srv.URL, "0xabc", 3))

	_, err := p.LatestBlock(ctx, 1)
	assert.Error(t, err)
	assert.Equal(t, int64(3), calls.Load())
}

func TestPool_QueryLogs(t *testing.T) {
	orig := retry.BaseDelay
	retry.BaseDelay = time.Millisecond
	defer func() { retry.BaseDelay = orig }()

	srv := jsonRPCServer(t, func(req rpc.Request) rpc.Response {
		if req.Method == "eth_blockNumber" {
			return rpc.Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`"0x64"`)}
		}
		assert.Equal(t, "eth_getLogs", req.Method)
		return rpc.Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  json.RawMessage(`[{"address":"0xabc","topics":["0xtopic0"],"data":"0x0","blockNumber":"0x1","transactionHash":"0xtx","logIndex":"0x0"}]`),
		}
	})
	defer srv.Close()

	p := NewPool()
	ctx := context.Background()
	require.NoError(t, p.Ensure(ctx, 1, srv.URL, "0xabc", 3))

	logs, err := p.QueryLogs(ctx, 1, 1, 2)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "0xtx", logs[0].TxHash)
}

func TestPool_BlockTimestamps(t *testing.T) {
	orig := retry.BaseDelay
	retry.BaseDelay = time.Millisecond
	defer func() { retry.BaseDelay = orig }()

	srv := jsonRPCServer(t, func(req rpc.Request) rpc.Response {
		if req.Method == "eth_blockNumber" {
			return rpc.Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`"0x64"`)}
		}
		assert.Equal(t, "eth_getBlockByNumber", req.Method)
		return rpc.Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  json.RawMessage(`{"number":"0x1","hash":"0xabc","timestamp":"0x64"}`),
		}
	})
	defer srv.Close()

	p := NewPool()
	ctx := context.Background()
	require.NoError(t, p.Ensure(ctx, 1, srv.URL, "0xabc", 3))

	timestamps, err := p.BlockTimestamps(ctx, 1, []int64{10, 20, 30})
	require.NoError(t, err)
	assert.Equal(t, int64(0x64), timestamps[10])
	assert.Equal(t, int64(0x64), timestamps[20])
	assert.Equal(t, int64(0x64), timestamps[30])
}

func TestPool_BlockTimestamps_UnknownChain(t *testing.T) {
	p := NewPool()
	_, err := p.BlockTimestamps(context.Background(), 42, []int64{1})
	assert.Error(t, err)
}

func TestPool_CircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	orig := retry.BaseDelay
	retry.BaseDelay = time.Millisecond
	defer func() { retry.BaseDelay = orig }()

	// The first request is Ensure's eth_blockNumber probe and succeeds;
	// every later request fails.
	var probed atomic.Bool
	srv := jsonRPCServer(t, func(req rpc.Request) rpc.Response {
		if probed.CompareAndSwap(false, true) {
			return rpc.Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`"0x64"`)}
		}
		return rpc.Response{JSONRPC: "2.0", ID: req.ID, Error: &rpc.RPCError{Code: -32603, Message: "internal error"}}
	})
	defer srv.Close()

	p := NewPool()
	ctx := context.Background()
	require.NoError(t, p.Ensure(ctx, 1, srv.URL, "0xabc", 1))

	for i := 0; i < 10; i++ {
		_, _ = p.LatestBlock(ctx, 1)
	}

	_, err := p.LatestBlock(ctx, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}
