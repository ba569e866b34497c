package aggregator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/dust-service/dust_service/internal/domain/entities"
)

func quoteWith(provider string, netUSD string, estimatedTime int) *entities.BridgeQuote {
	output, _ := decimal.NewFromString(netUSD)
	return &entities.BridgeQuote{
		QuoteID:        provider + "_q",
		Provider:       provider,
		OutputValueUSD: output,
		Fees:           entities.FeeBreakdown{TotalUSD: decimal.Zero},
		EstimatedTime:  estimatedTime,
		ExpiresAt:      time.Now().Add(time.Minute),
	}
}

func TestSelectQuote(t *testing.T) {
	t.Run("cost picks greatest net output", func(t *testing.T) {
		cheap := quoteWith("a", "47.50", 600)
		rich := quoteWith("b", "49.10", 900)

		best := SelectQuote(entities.PriorityCost, []*entities.BridgeQuote{cheap, rich})
		assert.Equal(t, "b", best.Provider)
	})

	t.Run("cost subtracts total fees", func(t *testing.T) {
		a := quoteWith("a", "50.00", 600)
		a.Fees.TotalUSD = decimal.NewFromFloat(5)
		b := quoteWith("b", "48.00", 600)
		b.Fees.TotalUSD = decimal.NewFromFloat(1)

		best := SelectQuote(entities.PriorityCost, []*entities.BridgeQuote{a, b})
		assert.Equal(t, "b", best.Provider)
	})

	t.Run("speed picks smallest estimated time", func(t *testing.T) {
		slow := quoteWith("a", "49.00", 900)
		fast := quoteWith("b", "45.00", 120)

		best := SelectQuote(entities.PrioritySpeed, []*entities.BridgeQuote{slow, fast})
		assert.Equal(t, "b", best.Provider)
	})

	t.Run("ties keep registration order", func(t *testing.T) {
		first := quoteWith("a", "48.00", 300)
		second := quoteWith("b", "48.00", 300)

		assert.Equal(t, "a", SelectQuote(entities.PriorityCost, []*entities.BridgeQuote{first, second}).Provider)
		assert.Equal(t, "a", SelectQuote(entities.PrioritySpeed, []*entities.BridgeQuote{first, second}).Provider)
	})

	t.Run("nil candidates are skipped", func(t *testing.T) {
		only := quoteWith("b", "48.00", 300)

		best := SelectQuote(entities.PriorityCost, []*entities.BridgeQuote{nil, only, nil})
		assert.Equal(t, "b", best.Provider)
	})

	t.Run("nil when no candidates survive", func(t *testing.T) {
		assert.Nil(t, SelectQuote(entities.PriorityCost, []*entities.BridgeQuote{nil, nil}))
		assert.Nil(t, SelectQuote(entities.PriorityCost, nil))
	})
}
