package consolidation

import (
	"context"
	goerrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dust-service/dust_service/internal/domain/entities"
	"github.com/dust-service/dust_service/internal/domain/errors"
	"github.com/dust-service/dust_service/internal/infrastructure/cache"
	"github.com/dust-service/dust_service/internal/infrastructure/config"
	"github.com/dust-service/dust_service/pkg/metrics"
)

// Engine is the orchestration facade over the optimizer and tracker. It
// always returns a structured result from its public operations; internal
// failures surface as messages, never as panics or naked errors.
type Engine struct {
	optimizer *Optimizer
	tracker   *Tracker
	store     cache.Store
	cfg       config.ConsolidationConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine wires an engine over the given collaborators
func NewEngine(optimizer *Optimizer, tracker *Tracker, store cache.Store, cfg config.ConsolidationConfig, logger *zap.Logger) *Engine {
	return &Engine{
		optimizer: optimizer,
		tracker:   tracker,
		store:     store,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// GetQuote validates the request, builds a full multi-chain plan, persists
// it with a TTL, and reports profitability. Low-value chains are skipped
// with a warning; only a request where every chain is filtered, or where no
// chain yields a route, fails.
func (e *Engine) GetQuote(ctx context.Context, req *entities.ConsolidationQuoteRequest) *entities.ConsolidationQuoteResult {
	if err := validateQuoteRequest(req, e.cfg.MaxSourceChains); err != nil {
		return &entities.ConsolidationQuoteResult{Success: false, Error: err.Error()}
	}

	sources, skipped := e.buildSources(req)
	if len(sources) == 0 {
		return &entities.ConsolidationQuoteResult{
			Success: false,
			Error: fmt.Sprintf("all source chains are below the minimum value threshold of $%.2f",
				e.cfg.MinChainValueUSD),
		}
	}

	var warnings []string
	if len(skipped) > 0 {
		warnings = append(warnings, fmt.Sprintf("Skipped low-value chains: %s", strings.Join(skipped, ", ")))
	}

	priority := req.Priority
	if priority == "" {
		priority = entities.PriorityCost
	}

	decisions := e.optimizer.Optimize(ctx, sources, req.DestinationChain, req.DestinationToken, req.UserAddress, priority)
	chainPlans := e.optimizer.BuildChainPlans(sources, decisions)
	if len(chainPlans) == 0 {
		return &entities.ConsolidationQuoteResult{
			Success:  false,
			Error:    errors.NoViableRoutesError().Message,
			Warnings: warnings,
		}
	}

	now := e.now()
	plan := &entities.ConsolidationPlan{
		PlanID:           newID("plan", now),
		UserID:           req.UserID,
		UserAddress:      req.UserAddress,
		Status:           entities.PlanStatusDraft,
		Sources:          sources,
		ChainPlans:       chainPlans,
		DestinationChain: req.DestinationChain,
		DestinationToken: req.DestinationToken,
		Priority:         priority,
		CreatedAt:        now,
		ExpiresAt:        now.Add(time.Duration(e.cfg.PlanTTL) * time.Second),
	}
	e.totalize(plan)

	plan.Status = entities.PlanStatusQuoted
	if err := e.tracker.StorePlan(ctx, plan); err != nil {
		e.logger.Error("Failed to persist consolidation plan",
			zap.String("plan_id", plan.PlanID), zap.Error(err))
		return &entities.ConsolidationQuoteResult{
			Success: false,
			Error:   errors.InternalError("failed to persist consolidation plan", err).Message,
		}
	}

	if profitable, ratio := e.optimizer.IsProfitable(plan.TotalInputValueUSD, plan.TotalExpectedOutputUSD); !profitable {
		warnings = append(warnings, fmt.Sprintf(
			"Low profitability: expected output is %s%% of input value",
			ratio.Mul(decimal.NewFromInt(100)).Round(2)))
	}

	metrics.PlansCreated.Inc()
	e.logger.Info("Consolidation plan created",
		zap.String("plan_id", plan.PlanID),
		zap.String("user_id", plan.UserID),
		zap.Int("chains", len(plan.ChainPlans)),
		zap.String("total_input_usd", plan.TotalInputValueUSD.String()))

	return &entities.ConsolidationQuoteResult{Success: true, Plan: plan, Warnings: warnings}
}

// buildSources types the raw request sources and filters out chains below
// the minimum USD threshold, returning the survivors and the skipped names
func (e *Engine) buildSources(req *entities.ConsolidationQuoteRequest) ([]entities.ConsolidationSource, []string) {
	minValue := decimal.NewFromFloat(e.cfg.MinChainValueUSD)
	swapRatio := decimal.NewFromFloat(e.cfg.SwapFeeRatio)

	sources := make([]entities.ConsolidationSource, 0, len(req.Sources))
	var skipped []string

	for _, in := range req.Sources {
		total := decimal.Zero
		for _, tok := range in.Tokens {
			total = total.Add(tok.ValueUSD)
		}
		if total.LessThan(minValue) {
			skipped = append(skipped, in.Chain)
			continue
		}
		sources = append(sources, entities.ConsolidationSource{
			Chain:              in.Chain,
			Tokens:             in.Tokens,
			TotalValueUSD:      total,
			NeedsBridge:        in.Chain != req.DestinationChain,
			EstimatedOutputUSD: total.Mul(decimal.NewFromInt(1).Sub(swapRatio)),
		})
	}
	return sources, skipped
}

// totalize fills in the plan's aggregate USD figures and timing
func (e *Engine) totalize(plan *entities.ConsolidationPlan) {
	input := decimal.Zero
	for _, src := range plan.Sources {
		input = input.Add(src.TotalValueUSD)
	}

	fees := decimal.Zero
	output := decimal.Zero
	maxLegTime := 0
	for i := range plan.ChainPlans {
		cp := &plan.ChainPlans[i]
		fees = fees.Add(cp.SwapFeeUSD).Add(cp.GasFeeUSD).Add(cp.BridgeFeeUSD())
		output = output.Add(cp.ExpectedOutputUSD)
		if cp.EstimatedTime > maxLegTime {
			maxLegTime = cp.EstimatedTime
		}
	}

	plan.TotalInputValueUSD = input
	plan.TotalFeesUSD = fees
	plan.TotalExpectedOutputUSD = output
	if input.IsZero() {
		plan.FeePercentage = decimal.Zero
	} else {
		plan.FeePercentage = fees.Div(input).Mul(decimal.NewFromInt(100))
	}
	plan.EstimatedTotalTime = maxLegTime + e.cfg.CompletionBufferSec
}

// Execute re-validates a quoted plan and hands it off to the worker queue.
// It returns as soon as the job descriptor is durably cached; no bridging
// is awaited.
func (e *Engine) Execute(ctx context.Context, req *entities.ConsolidationExecuteRequest) *entities.ConsolidationExecuteResult {
	plan, err := e.tracker.GetPlan(ctx, req.PlanID)
	if err != nil {
		e.logger.Error("Failed to load plan for execution",
			zap.String("plan_id", req.PlanID), zap.Error(err))
		return &entities.ConsolidationExecuteResult{
			Success: false,
			Error:   errors.InternalError("failed to load consolidation plan", err).Message,
		}
	}
	if plan == nil {
		return &entities.ConsolidationExecuteResult{Success: false, Error: errors.PlanNotFoundError(req.PlanID).Message}
	}

	now := e.now()
	if plan.Expired(now) {
		return &entities.ConsolidationExecuteResult{Success: false, Error: errors.PlanExpiredError(req.PlanID).Message}
	}
	if plan.UserID != req.UserID {
		return &entities.ConsolidationExecuteResult{Success: false, Error: errors.UserMismatchError(req.PlanID).Message}
	}

	consolidationID := newID("cons", now)

	status, err := e.tracker.InitializeStatus(ctx, plan, consolidationID)
	if err != nil {
		e.logger.Error("Failed to initialize execution status",
			zap.String("consolidation_id", consolidationID), zap.Error(err))
		return &entities.ConsolidationExecuteResult{
			Success: false,
			Error:   errors.InternalError("failed to initialize execution status", err).Message,
		}
	}

	if err := e.tracker.MarkExecuting(ctx, plan); err != nil {
		e.logger.Warn("Failed to mark plan as executing",
			zap.String("plan_id", plan.PlanID), zap.Error(err))
	}

	job := &entities.ConsolidationJobData{
		ConsolidationID:  consolidationID,
		PlanID:           plan.PlanID,
		UserID:           plan.UserID,
		UserAddress:      plan.UserAddress,
		ChainPlans:       plan.ChainPlans,
		DestinationChain: plan.DestinationChain,
		DestinationToken: plan.DestinationToken,
		Signatures:       req.Signatures,
		EnqueuedAt:       now,
	}
	if err := e.store.Set(ctx, jobKeyPrefix+consolidationID, job, time.Duration(e.cfg.ExecutionTTL)*time.Second); err != nil {
		e.logger.Error("Failed to enqueue consolidation job",
			zap.String("consolidation_id", consolidationID), zap.Error(err))
		return &entities.ConsolidationExecuteResult{
			Success: false,
			Error:   errors.InternalError("failed to enqueue consolidation job", err).Message,
		}
	}

	metrics.ExecutionsStarted.Inc()
	e.logger.Info("Consolidation execution dispatched",
		zap.String("consolidation_id", consolidationID),
		zap.String("plan_id", plan.PlanID),
		zap.String("user_id", plan.UserID))

	return &entities.ConsolidationExecuteResult{
		Success:         true,
		ConsolidationID: consolidationID,
		Status:          status,
	}
}

// Simulate runs the quote path and reshapes the plan into a per-chain
// dry-run preview without touching any execution state
func (e *Engine) Simulate(ctx context.Context, req *entities.ConsolidationQuoteRequest) *entities.ConsolidationSimulationResult {
	quote := e.GetQuote(ctx, req)
	if !quote.Success {
		return &entities.ConsolidationSimulationResult{
			Success:  false,
			Error:    quote.Error,
			Warnings: quote.Warnings,
		}
	}

	plan := quote.Plan
	inputByChain := make(map[string]decimal.Decimal, len(plan.Sources))
	for _, src := range plan.Sources {
		inputByChain[src.Chain] = src.TotalValueUSD
	}

	chains := make([]entities.ChainSimulation, len(plan.ChainPlans))
	for i, cp := range plan.ChainPlans {
		chains[i] = entities.ChainSimulation{
			Chain:             cp.Chain,
			SwapAvailable:     true,
			BridgeAvailable:   !cp.NeedsBridge || cp.BridgeQuote != nil,
			NeedsBridge:       cp.NeedsBridge,
			InputValueUSD:     inputByChain[cp.Chain],
			ExpectedOutputUSD: cp.ExpectedOutputUSD,
		}
	}

	profitable, _ := e.optimizer.IsProfitable(plan.TotalInputValueUSD, plan.TotalExpectedOutputUSD)
	return &entities.ConsolidationSimulationResult{
		Success:                true,
		Chains:                 chains,
		TotalInputValueUSD:     plan.TotalInputValueUSD,
		TotalExpectedOutputUSD: plan.TotalExpectedOutputUSD,
		Profitable:             profitable,
		Warnings:               quote.Warnings,
	}
}

// GetStatus returns the execution status, or nil when unknown
func (e *Engine) GetStatus(ctx context.Context, consolidationID string) (*entities.ConsolidationStatusDetail, error) {
	return e.tracker.GetStatus(ctx, consolidationID)
}

// GetUserHistory returns a user's executions most-recent-first
func (e *Engine) GetUserHistory(ctx context.Context, userID string, limit, offset int) ([]entities.ConsolidationStatusDetail, error) {
	return e.tracker.GetUserHistory(ctx, userID, limit, offset)
}

// GetPlan returns the plan, or nil once expired
func (e *Engine) GetPlan(ctx context.Context, planID string) (*entities.ConsolidationPlan, error) {
	return e.tracker.GetPlan(ctx, planID)
}

// GetJobData returns the queued job descriptor, or nil when absent
func (e *Engine) GetJobData(ctx context.Context, consolidationID string) (*entities.ConsolidationJobData, error) {
	var job entities.ConsolidationJobData
	err := e.store.Get(ctx, jobKeyPrefix+consolidationID, &job)
	if goerrors.Is(err, cache.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load job data %s: %w", consolidationID, err)
	}
	return &job, nil
}

// validateQuoteRequest enforces structural constraints before any network
// call is made
func validateQuoteRequest(req *entities.ConsolidationQuoteRequest, maxSources int) error {
	switch {
	case req.UserID == "":
		return errors.ValidationError("user_id", "user id is required")
	case req.UserAddress == "":
		return errors.ValidationError("user_address", "user address is required")
	case req.DestinationChain == "":
		return errors.ValidationError("destination_chain", "destination chain is required")
	case req.DestinationToken.Address == "":
		return errors.ValidationError("destination_token", "destination token is required")
	case len(req.Sources) == 0:
		return errors.ValidationError("sources", "at least one source chain is required")
	case len(req.Sources) > maxSources:
		return errors.ValidationError("sources",
			fmt.Sprintf("too many source chains: %d exceeds the maximum of %d", len(req.Sources), maxSources))
	}
	for _, src := range req.Sources {
		if src.Chain == "" {
			return errors.ValidationError("sources", "source chain name is required")
		}
		if len(src.Tokens) == 0 {
			return errors.ValidationError("sources",
				fmt.Sprintf("source chain %s has no tokens", src.Chain))
		}
	}
	return nil
}

// newID mints a collision-resistant identifier: timestamp plus random suffix
func newID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), uuid.NewString()[:8])
}
