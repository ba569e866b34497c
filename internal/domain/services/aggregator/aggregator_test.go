package aggregator

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dust-service/dust_service/internal/domain/entities"
	"github.com/dust-service/dust_service/internal/domain/errors"
	"github.com/dust-service/dust_service/internal/infrastructure/cache"
)

type fakeProvider struct {
	name        string
	supports    bool
	supportsErr error
	quote       *entities.BridgeQuote
	quoteErr    error
	tx          *entities.TransactionDescriptor
	txErr       error
	receipt     *entities.BridgeReceipt
	statusErr   error

	quoteCalls  int32
	statusCalls int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) SupportsRoute(context.Context, string, string, entities.Token) (bool, error) {
	return f.supports, f.supportsErr
}

func (f *fakeProvider) GetQuote(context.Context, *entities.BridgeQuoteRequest) (*entities.BridgeQuote, error) {
	atomic.AddInt32(&f.quoteCalls, 1)
	return f.quote, f.quoteErr
}

func (f *fakeProvider) BuildTransaction(context.Context, *entities.BridgeQuote) (*entities.TransactionDescriptor, error) {
	return f.tx, f.txErr
}

func (f *fakeProvider) GetStatus(context.Context, string, string) (*entities.BridgeReceipt, error) {
	atomic.AddInt32(&f.statusCalls, 1)
	return f.receipt, f.statusErr
}

func testQuote(provider, id string, netUSD float64, estimatedTime int, expiresAt time.Time) *entities.BridgeQuote {
	return &entities.BridgeQuote{
		QuoteID:        id,
		Provider:       provider,
		SourceChain:    "polygon",
		AmountIn:       big.NewInt(1000000),
		AmountOut:      big.NewInt(990000),
		OutputValueUSD: decimal.NewFromFloat(netUSD),
		Fees:           entities.FeeBreakdown{TotalUSD: decimal.Zero},
		EstimatedTime:  estimatedTime,
		ExpiresAt:      expiresAt,
	}
}

func testRequest() *entities.BridgeQuoteRequest {
	return &entities.BridgeQuoteRequest{
		SourceChain:      "polygon",
		DestinationChain: "base",
		SourceToken:      entities.Token{Address: "0xusdc", Symbol: "USDC", Decimals: 6},
		DestinationToken: entities.Token{Address: "0xusdc2", Symbol: "USDC", Decimals: 6},
		AmountIn:         big.NewInt(1000000),
		UserAddress:      "0xuser",
		Priority:         entities.PriorityCost,
	}
}

func newTestAggregator(store cache.Store, clock func() time.Time, providers ...Provider) *Aggregator {
	agg := New(providers, store, Config{
		QuoteTimeout:    time.Second,
		RouteSupportTTL: 5 * time.Minute,
		RouteFailureTTL: 30 * time.Second,
		QuoteValidity:   2 * time.Minute,
	}, zap.NewNop())
	if clock != nil {
		agg.now = clock
	}
	return agg
}

func TestGetQuote(t *testing.T) {
	ctx := context.Background()

	t.Run("selects best quote across providers", func(t *testing.T) {
		store := cache.NewMemory()
		expiry := time.Now().Add(time.Minute)
		a := &fakeProvider{name: "a", quote: testQuote("a", "a_q1", 47.50, 600, expiry)}
		b := &fakeProvider{name: "b", quote: testQuote("b", "b_q1", 49.10, 900, expiry)}
		agg := newTestAggregator(store, nil, a, b)

		quote, err := agg.GetQuote(ctx, testRequest())
		require.NoError(t, err)
		require.NotNil(t, quote)
		assert.Equal(t, "b", quote.Provider)
		assert.EqualValues(t, 1, a.quoteCalls)
		assert.EqualValues(t, 1, b.quoteCalls)
	})

	t.Run("discards errored and amount-too-low providers", func(t *testing.T) {
		store := cache.NewMemory()
		expiry := time.Now().Add(time.Minute)
		a := &fakeProvider{name: "a", quoteErr: errors.ErrAmountTooLow}
		b := &fakeProvider{name: "b", quoteErr: fmt.Errorf("upstream 502")}
		c := &fakeProvider{name: "c", quote: testQuote("c", "c_q1", 45.00, 300, expiry)}
		agg := newTestAggregator(store, nil, a, b, c)

		quote, err := agg.GetQuote(ctx, testRequest())
		require.NoError(t, err)
		require.NotNil(t, quote)
		assert.Equal(t, "c", quote.Provider)
	})

	t.Run("returns nil when zero providers produce a quote", func(t *testing.T) {
		store := cache.NewMemory()
		a := &fakeProvider{name: "a", quoteErr: fmt.Errorf("down")}
		b := &fakeProvider{name: "b"} // nil quote, no route
		agg := newTestAggregator(store, nil, a, b)

		quote, err := agg.GetQuote(ctx, testRequest())
		require.NoError(t, err)
		assert.Nil(t, quote)
	})

	t.Run("returns nil with no registered providers", func(t *testing.T) {
		agg := newTestAggregator(cache.NewMemory(), nil)

		quote, err := agg.GetQuote(ctx, testRequest())
		require.NoError(t, err)
		assert.Nil(t, quote)
	})
}

func TestBuildTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("builds from cached context before expiry and is deterministic", func(t *testing.T) {
		now := time.Now()
		store := cache.NewMemory()
		store.Now = func() time.Time { return now }

		tx := &entities.TransactionDescriptor{To: "0xpool", Data: "0xdead", Value: big.NewInt(0), GasLimit: 210000}
		a := &fakeProvider{name: "a", quote: testQuote("a", "a_q1", 47.50, 600, now.Add(time.Minute)), tx: tx}
		agg := newTestAggregator(store, func() time.Time { return now }, a)

		quote, err := agg.GetQuote(ctx, testRequest())
		require.NoError(t, err)
		require.NotNil(t, quote)

		first, err := agg.BuildTransaction(ctx, quote)
		require.NoError(t, err)
		second, err := agg.BuildTransaction(ctx, quote)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, "0xpool", first.To)
	})

	t.Run("fails with expired error once the context TTL elapses", func(t *testing.T) {
		now := time.Now()
		store := cache.NewMemory()
		store.Now = func() time.Time { return now }

		a := &fakeProvider{name: "a", quote: testQuote("a", "a_q1", 47.50, 600, now.Add(time.Minute)), tx: &entities.TransactionDescriptor{To: "0xpool"}}
		agg := newTestAggregator(store, func() time.Time { return now }, a)

		quote, err := agg.GetQuote(ctx, testRequest())
		require.NoError(t, err)

		now = now.Add(2 * time.Minute)

		_, err = agg.BuildTransaction(ctx, quote)
		require.Error(t, err)
		assert.True(t, errors.IsExpired(err))
		assert.Equal(t, "QUOTE_EXPIRED", errors.GetErrorCode(err))
	})

	t.Run("a quote expired by its own timestamp never builds", func(t *testing.T) {
		now := time.Now()
		store := cache.NewMemory()
		store.Now = func() time.Time { return now }

		stale := testQuote("a", "a_q1", 47.50, 600, now.Add(-time.Second))
		a := &fakeProvider{name: "a", quote: stale, tx: &entities.TransactionDescriptor{To: "0xpool"}}
		agg := newTestAggregator(store, func() time.Time { return now }, a)

		quote, err := agg.GetQuote(ctx, testRequest())
		require.NoError(t, err)
		require.NotNil(t, quote)

		_, err = agg.BuildTransaction(ctx, quote)
		require.Error(t, err)
		assert.True(t, errors.IsExpired(err))
		assert.Equal(t, "QUOTE_EXPIRED", errors.GetErrorCode(err))
	})

	t.Run("missing provider expiry falls back to the validity window", func(t *testing.T) {
		now := time.Now()
		store := cache.NewMemory()
		store.Now = func() time.Time { return now }

		noExpiry := testQuote("a", "a_q1", 47.50, 600, time.Time{})
		a := &fakeProvider{name: "a", quote: noExpiry, tx: &entities.TransactionDescriptor{To: "0xpool"}}
		agg := newTestAggregator(store, func() time.Time { return now }, a)

		quote, err := agg.GetQuote(ctx, testRequest())
		require.NoError(t, err)
		require.NotNil(t, quote)
		assert.Equal(t, now.Add(2*time.Minute), quote.ExpiresAt)

		_, err = agg.BuildTransaction(ctx, quote)
		require.NoError(t, err)

		now = now.Add(3 * time.Minute)
		_, err = agg.BuildTransaction(ctx, quote)
		require.Error(t, err)
		assert.True(t, errors.IsExpired(err))
	})

	t.Run("fails for a quote identifier that was never issued", func(t *testing.T) {
		a := &fakeProvider{name: "a"}
		agg := newTestAggregator(cache.NewMemory(), nil, a)

		_, err := agg.BuildTransaction(ctx, &entities.BridgeQuote{QuoteID: "unknown"})
		require.Error(t, err)
		assert.True(t, errors.IsExpired(err))
	})
}

func TestGetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("probes providers and memoizes the issuer", func(t *testing.T) {
		store := cache.NewMemory()
		a := &fakeProvider{name: "a", statusErr: fmt.Errorf("unknown tx")}
		b := &fakeProvider{name: "b", receipt: &entities.BridgeReceipt{Status: entities.ReceiptStatusBridging, SourceTxHash: "0xtx"}}
		agg := newTestAggregator(store, nil, a, b)

		receipt := agg.GetStatus(ctx, "0xtx", "polygon")
		require.NotNil(t, receipt)
		assert.Equal(t, entities.ReceiptStatusBridging, receipt.Status)
		assert.Equal(t, "b", receipt.Provider)
		assert.EqualValues(t, 1, a.statusCalls)

		// Second poll goes straight to the memoized provider
		receipt = agg.GetStatus(ctx, "0xtx", "polygon")
		assert.Equal(t, "b", receipt.Provider)
		assert.EqualValues(t, 1, a.statusCalls)
		assert.EqualValues(t, 2, b.statusCalls)
	})

	t.Run("returns pending receipt instead of erroring", func(t *testing.T) {
		a := &fakeProvider{name: "a", statusErr: fmt.Errorf("rpc timeout")}
		agg := newTestAggregator(cache.NewMemory(), nil, a)

		receipt := agg.GetStatus(ctx, "0xtx", "polygon")
		require.NotNil(t, receipt)
		assert.Equal(t, entities.ReceiptStatusPending, receipt.Status)
		assert.Equal(t, "0xtx", receipt.SourceTxHash)
		assert.Contains(t, receipt.ErrorMessage, "rpc timeout")
	})
}

func TestSupportsRoute(t *testing.T) {
	ctx := context.Background()
	token := entities.Token{Address: "0xusdc", Symbol: "USDC", Decimals: 6}

	t.Run("supported when any provider claims the route", func(t *testing.T) {
		a := &fakeProvider{name: "a", supports: false}
		b := &fakeProvider{name: "b", supports: true}
		agg := newTestAggregator(cache.NewMemory(), nil, a, b)

		assert.True(t, agg.SupportsRoute(ctx, "polygon", "base", token))
	})

	t.Run("provider errors count as not supported", func(t *testing.T) {
		a := &fakeProvider{name: "a", supportsErr: fmt.Errorf("down")}
		agg := newTestAggregator(cache.NewMemory(), nil, a)

		assert.False(t, agg.SupportsRoute(ctx, "polygon", "base", token))
	})

	t.Run("failures are cached for a shorter TTL than successes", func(t *testing.T) {
		now := time.Now()
		store := cache.NewMemory()
		store.Now = func() time.Time { return now }

		a := &fakeProvider{name: "a", supports: false}
		agg := newTestAggregator(store, func() time.Time { return now }, a)

		assert.False(t, agg.SupportsRoute(ctx, "polygon", "base", token))

		// Provider recovers, but the negative result is still cached
		a.supports = true
		assert.False(t, agg.SupportsRoute(ctx, "polygon", "base", token))

		// Past the failure TTL the route is probed again
		now = now.Add(31 * time.Second)
		assert.True(t, agg.SupportsRoute(ctx, "polygon", "base", token))

		// The positive result stays cached well past the failure TTL
		a.supports = false
		now = now.Add(time.Minute)
		assert.True(t, agg.SupportsRoute(ctx, "polygon", "base", token))
	})
}
