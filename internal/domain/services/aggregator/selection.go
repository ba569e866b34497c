package aggregator

import (
	"github.com/shopspring/decimal"

	"github.com/dust-service/dust_service/internal/domain/entities"
)

// SelectQuote picks the best quote for the requested priority. Candidates
// must be in provider registration order: ties keep the earlier quote, so
// selection is deterministic. Returns nil when no candidate survives.
func SelectQuote(priority entities.BridgePriority, quotes []*entities.BridgeQuote) *entities.BridgeQuote {
	var best *entities.BridgeQuote
	for _, q := range quotes {
		if q == nil {
			continue
		}
		if best == nil || better(priority, q, best) {
			best = q
		}
	}
	return best
}

// better reports whether candidate strictly beats incumbent under priority
func better(priority entities.BridgePriority, candidate, incumbent *entities.BridgeQuote) bool {
	switch priority {
	case entities.PrioritySpeed:
		return candidate.EstimatedTime < incumbent.EstimatedTime
	default:
		// cost: greatest output value net of total fees
		return netOutputUSD(candidate).GreaterThan(netOutputUSD(incumbent))
	}
}

func netOutputUSD(q *entities.BridgeQuote) decimal.Decimal {
	return q.OutputValueUSD.Sub(q.Fees.TotalUSD)
}
