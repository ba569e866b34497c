// Package consolidation plans and dispatches multi-chain dust consolidations.
// The optimizer makes independent per-chain routing decisions; the engine
// validates, totals, persists, and hands executions to the worker queue.
package consolidation

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dust-service/dust_service/internal/domain/entities"
	"github.com/dust-service/dust_service/internal/infrastructure/config"
)

// BridgeRouter is the slice of the aggregator the optimizer consumes
type BridgeRouter interface {
	GetQuote(ctx context.Context, req *entities.BridgeQuoteRequest) (*entities.BridgeQuote, error)
}

// RoutingDecision is one chain's routing outcome. Quote is nil when the
// chain needs no bridge, or when no provider offered a route.
type RoutingDecision struct {
	Chain       string
	NeedsBridge bool
	Quote       *entities.BridgeQuote
}

// Optimizer turns per-chain holdings into per-chain plan fragments.
// Chains are routed independently; there is no cross-chain trade-off search.
type Optimizer struct {
	router   BridgeRouter
	cfg      config.ConsolidationConfig
	slippage float64
	logger   *zap.Logger
}

// NewOptimizer creates an optimizer over the given bridge router
func NewOptimizer(router BridgeRouter, cfg config.ConsolidationConfig, defaultSlippage float64, logger *zap.Logger) *Optimizer {
	return &Optimizer{
		router:   router,
		cfg:      cfg,
		slippage: defaultSlippage,
		logger:   logger,
	}
}

// Optimize makes a routing decision for every source chain concurrently.
// A chain matching the destination needs no bridge. For the rest, the
// aggregator is asked for the best route for the chain's dominant token;
// a routing failure leaves the decision's Quote nil.
func (o *Optimizer) Optimize(ctx context.Context, sources []entities.ConsolidationSource, destChain string, destToken entities.Token, userAddress string, priority entities.BridgePriority) []RoutingDecision {
	decisions := make([]RoutingDecision, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		if src.Chain == destChain {
			decisions[i] = RoutingDecision{Chain: src.Chain, NeedsBridge: false}
			continue
		}

		wg.Add(1)
		go func(i int, src entities.ConsolidationSource) {
			defer wg.Done()

			token := dominantToken(src)
			quote, err := o.router.GetQuote(ctx, &entities.BridgeQuoteRequest{
				SourceChain:      src.Chain,
				DestinationChain: destChain,
				SourceToken:      entities.Token{Address: token.Address, Symbol: token.Symbol, Decimals: token.Decimals},
				DestinationToken: destToken,
				AmountIn:         token.Amount,
				UserAddress:      userAddress,
				Slippage:         o.slippage,
				Priority:         priority,
			})
			if err != nil {
				o.logger.Warn("Bridge routing failed for chain",
					zap.String("chain", src.Chain),
					zap.String("dest_chain", destChain),
					zap.Error(err))
				quote = nil
			}
			decisions[i] = RoutingDecision{Chain: src.Chain, NeedsBridge: true, Quote: quote}
		}(i, src)
	}
	wg.Wait()

	return decisions
}

// dominantToken returns the holding with the highest USD value
func dominantToken(src entities.ConsolidationSource) entities.TokenHolding {
	best := src.Tokens[0]
	for _, t := range src.Tokens[1:] {
		if t.ValueUSD.GreaterThan(best.ValueUSD) {
			best = t
		}
	}
	return best
}

// BuildChainPlans costs each routing decision into a plan fragment. Swap
// cost is a fixed approximate fee ratio on the chain's total value, since
// actual swap routing happens in the external worker. Chains that need a
// bridge but got no route are omitted; the engine decides whether an empty
// result is fatal.
func (o *Optimizer) BuildChainPlans(sources []entities.ConsolidationSource, decisions []RoutingDecision) []entities.ChainPlan {
	swapRatio := decimal.NewFromFloat(o.cfg.SwapFeeRatio)
	gasUSD := decimal.NewFromFloat(o.cfg.SwapGasUSD)

	plans := make([]entities.ChainPlan, 0, len(sources))
	for i, src := range sources {
		d := decisions[i]
		if d.NeedsBridge && d.Quote == nil {
			o.logger.Info("No viable bridge route, chain omitted from plan",
				zap.String("chain", src.Chain))
			continue
		}

		plan := entities.ChainPlan{
			Chain:         src.Chain,
			NeedsBridge:   d.NeedsBridge,
			SwapFeeUSD:    src.TotalValueUSD.Mul(swapRatio),
			GasFeeUSD:     gasUSD,
			BridgeQuote:   d.Quote,
			EstimatedTime: o.cfg.SwapTimeSeconds,
		}
		if d.Quote != nil {
			plan.EstimatedTime += d.Quote.EstimatedTime
		}
		plan.ExpectedOutputUSD = src.TotalValueUSD.
			Sub(plan.SwapFeeUSD).
			Sub(plan.GasFeeUSD).
			Sub(plan.BridgeFeeUSD())
		if plan.ExpectedOutputUSD.IsNegative() {
			plan.ExpectedOutputUSD = decimal.Zero
		}
		plans = append(plans, plan)
	}
	return plans
}

// IsProfitable checks the output/input ratio against the configured
// threshold. A low ratio is a warning for the caller, not a rejection.
func (o *Optimizer) IsProfitable(totalInput, expectedOutput decimal.Decimal) (bool, decimal.Decimal) {
	if totalInput.IsZero() {
		return false, decimal.Zero
	}
	ratio := expectedOutput.Div(totalInput)
	return ratio.GreaterThanOrEqual(decimal.NewFromFloat(o.cfg.ProfitabilityThreshold)), ratio
}
