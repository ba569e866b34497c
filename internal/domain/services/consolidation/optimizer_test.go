package consolidation

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dust-service/dust_service/internal/domain/entities"
)

// recordingRouter captures the requests it receives, keyed by source chain
type recordingRouter struct {
	mu       sync.Mutex
	requests map[string]*entities.BridgeQuoteRequest
	quotes   map[string]*entities.BridgeQuote
}

func newRecordingRouter() *recordingRouter {
	return &recordingRouter{
		requests: make(map[string]*entities.BridgeQuoteRequest),
		quotes:   make(map[string]*entities.BridgeQuote),
	}
}

func (r *recordingRouter) GetQuote(_ context.Context, req *entities.BridgeQuoteRequest) (*entities.BridgeQuote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.SourceChain] = req
	return r.quotes[req.SourceChain], nil
}

func source(chain string, holdings ...entities.TokenHolding) entities.ConsolidationSource {
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(h.ValueUSD)
	}
	return entities.ConsolidationSource{
		Chain:         chain,
		Tokens:        holdings,
		TotalValueUSD: total,
	}
}

func TestOptimize(t *testing.T) {
	ctx := context.Background()
	destToken := entities.Token{Address: "0xusdc", Symbol: "USDC", Decimals: 6}

	t.Run("same-chain sources need no bridge and no router call", func(t *testing.T) {
		router := newRecordingRouter()
		opt := NewOptimizer(router, testConfig(), 0.005, zap.NewNop())

		decisions := opt.Optimize(ctx,
			[]entities.ConsolidationSource{source("base", holding("0xa", "USDT", 50))},
			"base", destToken, "0xuser", entities.PriorityCost)

		require.Len(t, decisions, 1)
		assert.False(t, decisions[0].NeedsBridge)
		assert.Nil(t, decisions[0].Quote)
		assert.Empty(t, router.requests)
	})

	t.Run("routes the dominant token of each bridging chain", func(t *testing.T) {
		router := newRecordingRouter()
		router.quotes["polygon"] = bridgedQuote(2.00, 600)
		opt := NewOptimizer(router, testConfig(), 0.005, zap.NewNop())

		small := holding("0xsmall", "DAI", 5)
		large := entities.TokenHolding{
			Address:  "0xlarge",
			Symbol:   "USDT",
			Decimals: 6,
			Amount:   big.NewInt(45000000),
			ValueUSD: decimal.NewFromInt(45),
		}

		decisions := opt.Optimize(ctx,
			[]entities.ConsolidationSource{source("polygon", small, large)},
			"base", destToken, "0xuser", entities.PrioritySpeed)

		require.Len(t, decisions, 1)
		assert.True(t, decisions[0].NeedsBridge)
		require.NotNil(t, decisions[0].Quote)

		req := router.requests["polygon"]
		require.NotNil(t, req)
		assert.Equal(t, "0xlarge", req.SourceToken.Address)
		assert.Equal(t, entities.PrioritySpeed, req.Priority)
		assert.Equal(t, "0xuser", req.UserAddress)
	})

	t.Run("decisions keep source order under concurrency", func(t *testing.T) {
		router := newRecordingRouter()
		chains := []string{"polygon", "arbitrum", "optimism", "avalanche"}
		sources := make([]entities.ConsolidationSource, len(chains))
		for i, chain := range chains {
			router.quotes[chain] = bridgedQuote(1.00, 300)
			sources[i] = source(chain, holding("0x"+chain, "USDT", 10))
		}
		opt := NewOptimizer(router, testConfig(), 0.005, zap.NewNop())

		decisions := opt.Optimize(ctx, sources, "base", destToken, "0xuser", entities.PriorityCost)
		require.Len(t, decisions, len(chains))
		for i, chain := range chains {
			assert.Equal(t, chain, decisions[i].Chain)
		}
	})
}

func TestBuildChainPlans(t *testing.T) {
	t.Run("prices swap, gas, and bridge into expected output", func(t *testing.T) {
		opt := NewOptimizer(newRecordingRouter(), testConfig(), 0.005, zap.NewNop())

		src := source("polygon", holding("0xa", "USDT", 100))
		quote := bridgedQuote(2.00, 600)

		plans := opt.BuildChainPlans(
			[]entities.ConsolidationSource{src},
			[]RoutingDecision{{Chain: "polygon", NeedsBridge: true, Quote: quote}})

		require.Len(t, plans, 1)
		plan := plans[0]
		// 100 - 0.30 swap - 0.50 gas - 2.00 bridge
		assert.True(t, plan.SwapFeeUSD.Equal(decimal.NewFromFloat(0.30)), plan.SwapFeeUSD.String())
		assert.True(t, plan.ExpectedOutputUSD.Equal(decimal.NewFromFloat(97.20)), plan.ExpectedOutputUSD.String())
		assert.Equal(t, 660, plan.EstimatedTime)
	})

	t.Run("omits chains without a viable route", func(t *testing.T) {
		opt := NewOptimizer(newRecordingRouter(), testConfig(), 0.005, zap.NewNop())

		plans := opt.BuildChainPlans(
			[]entities.ConsolidationSource{
				source("polygon", holding("0xa", "USDT", 50)),
				source("arbitrum", holding("0xb", "DAI", 20)),
			},
			[]RoutingDecision{
				{Chain: "polygon", NeedsBridge: true, Quote: nil},
				{Chain: "arbitrum", NeedsBridge: true, Quote: bridgedQuote(1.00, 300)},
			})

		require.Len(t, plans, 1)
		assert.Equal(t, "arbitrum", plans[0].Chain)
	})

	t.Run("expected output never goes negative", func(t *testing.T) {
		opt := NewOptimizer(newRecordingRouter(), testConfig(), 0.005, zap.NewNop())

		plans := opt.BuildChainPlans(
			[]entities.ConsolidationSource{source("polygon", holding("0xa", "USDT", 1.10))},
			[]RoutingDecision{{Chain: "polygon", NeedsBridge: true, Quote: bridgedQuote(5.00, 300)}})

		require.Len(t, plans, 1)
		assert.True(t, plans[0].ExpectedOutputUSD.IsZero())
	})
}

func TestIsProfitable(t *testing.T) {
	opt := NewOptimizer(newRecordingRouter(), testConfig(), 0.005, zap.NewNop())

	t.Run("above threshold", func(t *testing.T) {
		ok, ratio := opt.IsProfitable(decimal.NewFromInt(100), decimal.NewFromInt(95))
		assert.True(t, ok)
		assert.True(t, ratio.Equal(decimal.NewFromFloat(0.95)))
	})

	t.Run("below threshold", func(t *testing.T) {
		ok, ratio := opt.IsProfitable(decimal.NewFromInt(100), decimal.NewFromInt(60))
		assert.False(t, ok)
		assert.True(t, ratio.Equal(decimal.NewFromFloat(0.6)))
	})

	t.Run("zero input", func(t *testing.T) {
		ok, ratio := opt.IsProfitable(decimal.Zero, decimal.NewFromInt(10))
		assert.False(t, ok)
		assert.True(t, ratio.IsZero())
	})
}
