// Package status_poller advances execution statuses by observing bridge
// progress. It only observes: transaction submission belongs to the
// external execution worker, which records source tx hashes as it goes.
package status_poller

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dust-service/dust_service/internal/domain/entities"
	"github.com/dust-service/dust_service/internal/domain/services/consolidation"
	"github.com/dust-service/dust_service/pkg/metrics"
)

// BridgeObserver is the slice of the aggregator the poller consumes
type BridgeObserver interface {
	GetStatus(ctx context.Context, txHash, sourceChain string) *entities.BridgeReceipt
}

// Poller periodically sweeps active executions and advances their per-chain
// leg statuses from observed bridge receipts. Terminal states never revert.
type Poller struct {
	tracker  *consolidation.Tracker
	observer BridgeObserver
	cron     *cron.Cron
	schedule string
	logger   *zap.Logger
}

// NewPoller creates a poller sweeping on the given cron schedule,
// e.g. "@every 30s"
func NewPoller(tracker *consolidation.Tracker, observer BridgeObserver, schedule string, logger *zap.Logger) *Poller {
	if schedule == "" {
		schedule = "@every 30s"
	}
	return &Poller{
		tracker:  tracker,
		observer: observer,
		cron:     cron.New(),
		schedule: schedule,
		logger:   logger,
	}
}

// Start schedules the sweep loop
func (p *Poller) Start() error {
	_, err := p.cron.AddFunc(p.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if err := p.Sweep(ctx); err != nil {
			p.logger.Error("Status poll sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	p.cron.Start()
	p.logger.Info("Status poller started", zap.String("schedule", p.schedule))
	return nil
}

// Stop halts the sweep loop
func (p *Poller) Stop() {
	p.cron.Stop()
	p.logger.Info("Status poller stopped")
}

// Sweep polls every non-terminal execution once. Legs without a recorded
// source transaction have not been submitted yet and are left alone.
func (p *Poller) Sweep(ctx context.Context) error {
	defer metrics.StatusPollCycles.Inc()

	active, err := p.tracker.ListActiveStatuses(ctx)
	if err != nil {
		return err
	}

	for i := range active {
		detail := &active[i]
		if p.advance(ctx, detail) {
			if err := p.tracker.UpdateStatus(ctx, detail); err != nil {
				p.logger.Error("Failed to persist advanced status",
					zap.String("consolidation_id", detail.ConsolidationID),
					zap.Error(err))
			}
		}
	}
	return nil
}

// advance folds observed receipts into the detail's legs and recomputes the
// aggregate state, reporting whether anything changed
func (p *Poller) advance(ctx context.Context, detail *entities.ConsolidationStatusDetail) bool {
	changed := false

	for i := range detail.Chains {
		leg := &detail.Chains[i]
		if leg.Status.IsTerminal() || leg.SourceTxHash == "" {
			continue
		}

		receipt := p.observer.GetStatus(ctx, leg.SourceTxHash, leg.Chain)
		next := legStatusFromReceipt(receipt.Status)
		if legRank(next) <= legRank(leg.Status) {
			continue
		}

		leg.Status = next
		leg.UpdatedAt = time.Now()
		if receipt.DestinationTxHash != "" {
			leg.DestinationTxHash = receipt.DestinationTxHash
		}
		if receipt.ErrorMessage != "" && next == entities.LegStatusFailed {
			leg.ErrorMessage = receipt.ErrorMessage
		}
		changed = true

		p.logger.Debug("Leg status advanced",
			zap.String("consolidation_id", detail.ConsolidationID),
			zap.String("chain", leg.Chain),
			zap.String("status", string(next)))
	}

	if next := aggregateStatus(detail.Chains); next != detail.Status {
		detail.Status = next
		changed = true
	}
	return changed
}

// legStatusFromReceipt maps observed bridge progress onto a leg state
func legStatusFromReceipt(status entities.BridgeReceiptStatus) entities.LegStatus {
	switch status {
	case entities.ReceiptStatusBridging:
		return entities.LegStatusBridging
	case entities.ReceiptStatusCompleted:
		return entities.LegStatusCompleted
	case entities.ReceiptStatusFailed:
		return entities.LegStatusFailed
	case entities.ReceiptStatusRefunded:
		return entities.LegStatusRefunded
	default:
		// A submitted but unconfirmed source tx means the leg is at least
		// past its swap
		return entities.LegStatusSwapping
	}
}

// legRank orders leg states so transitions are monotone
func legRank(s entities.LegStatus) int {
	switch s {
	case entities.LegStatusNotStarted:
		return 0
	case entities.LegStatusSwapping:
		return 1
	case entities.LegStatusBridging:
		return 2
	default:
		return 3
	}
}

// aggregateStatus derives the overall execution state from its legs
func aggregateStatus(chains []entities.ChainExecutionStatus) entities.ConsolidationStatusValue {
	if len(chains) == 0 {
		return entities.ConsolidationStatusInitializing
	}

	allTerminal := true
	anyCompleted := false
	anyStarted := false
	for _, leg := range chains {
		if !leg.Status.IsTerminal() {
			allTerminal = false
		}
		if leg.Status == entities.LegStatusCompleted {
			anyCompleted = true
		}
		if leg.Status != entities.LegStatusNotStarted {
			anyStarted = true
		}
	}

	switch {
	case allTerminal && anyCompleted && allCompleted(chains):
		return entities.ConsolidationStatusCompleted
	case allTerminal && anyCompleted:
		return entities.ConsolidationStatusPartial
	case allTerminal:
		return entities.ConsolidationStatusFailed
	case anyStarted:
		return entities.ConsolidationStatusProcessing
	default:
		return entities.ConsolidationStatusInitializing
	}
}

func allCompleted(chains []entities.ChainExecutionStatus) bool {
	for _, leg := range chains {
		if leg.Status != entities.LegStatusCompleted {
			return false
		}
	}
	return true
}
