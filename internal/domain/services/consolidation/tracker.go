package consolidation

import (
	"context"
	goerrors "errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dust-service/dust_service/internal/domain/entities"
	"github.com/dust-service/dust_service/internal/infrastructure/cache"
	"github.com/dust-service/dust_service/internal/infrastructure/config"
)

const (
	planKeyPrefix    = "consolidation:plan:"
	statusKeyPrefix  = "consolidation:status:"
	historyKeyPrefix = "consolidation:history:"
	jobKeyPrefix     = "consolidation:job:"
)

// Tracker owns the persisted lifetime of plans and execution statuses.
// TTL expiry is the only destruction mechanism; there is no delete path.
type Tracker struct {
	store  cache.Store
	cfg    config.ConsolidationConfig
	logger *zap.Logger
	now    func() time.Time

	// historyMu serializes the read-modify-write of the per-user history
	// index within this process. Writers in separate processes sharing one
	// Redis can still lose an entry.
	historyMu sync.Mutex
}

// NewTracker creates a tracker over the given store
func NewTracker(store cache.Store, cfg config.ConsolidationConfig, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// StorePlan persists a plan until its own expiry timestamp
func (t *Tracker) StorePlan(ctx context.Context, plan *entities.ConsolidationPlan) error {
	ttl := plan.ExpiresAt.Sub(t.now())
	if ttl <= 0 {
		ttl = time.Duration(t.cfg.PlanTTL) * time.Second
	}
	return t.store.Set(ctx, planKeyPrefix+plan.PlanID, plan, ttl)
}

// GetPlan returns the plan, or nil once its TTL has elapsed
func (t *Tracker) GetPlan(ctx context.Context, planID string) (*entities.ConsolidationPlan, error) {
	var plan entities.ConsolidationPlan
	err := t.store.Get(ctx, planKeyPrefix+planID, &plan)
	if goerrors.Is(err, cache.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", planID, err)
	}
	return &plan, nil
}

// MarkExecuting transitions a plan to the executing state and re-persists it
// for the execution window, so the plan outlives its quote-time expiry while
// the job references it
func (t *Tracker) MarkExecuting(ctx context.Context, plan *entities.ConsolidationPlan) error {
	plan.Status = entities.PlanStatusExecuting
	return t.store.Set(ctx, planKeyPrefix+plan.PlanID, plan,
		time.Duration(t.cfg.ExecutionTTL)*time.Second)
}

// InitializeStatus creates the execution-time status record for a dispatched
// plan, seeding one not-yet-started sub-status per chain fragment, and
// indexes it into the owner's history.
func (t *Tracker) InitializeStatus(ctx context.Context, plan *entities.ConsolidationPlan, consolidationID string) (*entities.ConsolidationStatusDetail, error) {
	now := t.now()

	chains := make([]entities.ChainExecutionStatus, len(plan.ChainPlans))
	for i, cp := range plan.ChainPlans {
		chains[i] = entities.ChainExecutionStatus{
			Chain:       cp.Chain,
			Status:      entities.LegStatusNotStarted,
			NeedsBridge: cp.NeedsBridge,
			UpdatedAt:   now,
		}
	}

	detail := &entities.ConsolidationStatusDetail{
		ConsolidationID:  consolidationID,
		PlanID:           plan.PlanID,
		UserID:           plan.UserID,
		Status:           entities.ConsolidationStatusInitializing,
		Chains:           chains,
		DestinationChain: plan.DestinationChain,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := t.UpdateStatus(ctx, detail); err != nil {
		return nil, err
	}
	if err := t.appendHistory(ctx, plan.UserID, consolidationID); err != nil {
		t.logger.Warn("Failed to index consolidation into user history",
			zap.String("consolidation_id", consolidationID),
			zap.String("user_id", plan.UserID),
			zap.Error(err))
	}
	return detail, nil
}

// UpdateStatus persists an execution status record for the history window
func (t *Tracker) UpdateStatus(ctx context.Context, detail *entities.ConsolidationStatusDetail) error {
	detail.UpdatedAt = t.now()
	return t.store.Set(ctx, statusKeyPrefix+detail.ConsolidationID, detail,
		time.Duration(t.cfg.HistoryTTL)*time.Second)
}

// GetStatus returns the execution status, or nil when unknown or expired
func (t *Tracker) GetStatus(ctx context.Context, consolidationID string) (*entities.ConsolidationStatusDetail, error) {
	var detail entities.ConsolidationStatusDetail
	err := t.store.Get(ctx, statusKeyPrefix+consolidationID, &detail)
	if goerrors.Is(err, cache.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load status %s: %w", consolidationID, err)
	}
	return &detail, nil
}

// ListActiveStatuses returns every execution status not yet in a terminal
// state, for the poller's periodic sweep
func (t *Tracker) ListActiveStatuses(ctx context.Context) ([]entities.ConsolidationStatusDetail, error) {
	keys, err := t.store.Keys(ctx, statusKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan statuses: %w", err)
	}

	active := make([]entities.ConsolidationStatusDetail, 0, len(keys))
	for _, key := range keys {
		var detail entities.ConsolidationStatusDetail
		if err := t.store.Get(ctx, key, &detail); err != nil {
			if goerrors.Is(err, cache.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load status at %s: %w", key, err)
		}
		if !detail.Status.IsTerminal() {
			active = append(active, detail)
		}
	}
	return active, nil
}

// GetUserHistory returns a user's executions most-recent-first with offset
// pagination. Entries whose status record has expired are skipped.
func (t *Tracker) GetUserHistory(ctx context.Context, userID string, limit, offset int) ([]entities.ConsolidationStatusDetail, error) {
	ids, err := t.historyIndex(ctx, userID)
	if err != nil {
		return nil, err
	}
	if offset >= len(ids) {
		return []entities.ConsolidationStatusDetail{}, nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	history := make([]entities.ConsolidationStatusDetail, 0, len(ids))
	for _, id := range ids {
		detail, err := t.GetStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if detail != nil {
			history = append(history, *detail)
		}
	}
	return history, nil
}

// appendHistory prepends an execution id to the user's index, newest first,
// capped at the configured maximum
func (t *Tracker) appendHistory(ctx context.Context, userID, consolidationID string) error {
	t.historyMu.Lock()
	defer t.historyMu.Unlock()

	ids, err := t.historyIndex(ctx, userID)
	if err != nil {
		return err
	}
	ids = append([]string{consolidationID}, ids...)
	if t.cfg.HistoryMaxEntries > 0 && len(ids) > t.cfg.HistoryMaxEntries {
		ids = ids[:t.cfg.HistoryMaxEntries]
	}
	return t.store.Set(ctx, historyKeyPrefix+userID, ids,
		time.Duration(t.cfg.HistoryTTL)*time.Second)
}

func (t *Tracker) historyIndex(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := t.store.Get(ctx, historyKeyPrefix+userID, &ids)
	if goerrors.Is(err, cache.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history index for %s: %w", userID, err)
	}
	return ids, nil
}
