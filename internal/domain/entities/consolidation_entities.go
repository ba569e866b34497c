package entities

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// PlanStatus tracks a consolidation plan through its lifecycle
type PlanStatus string

const (
	PlanStatusDraft     PlanStatus = "draft"     // Validated, not yet quoted
	PlanStatusQuoted    PlanStatus = "quoted"    // Persisted with TTL
	PlanStatusExecuting PlanStatus = "executing" // Job enqueued, TTL extended
)

// ConsolidationStatusValue is the aggregate execution state
type ConsolidationStatusValue string

const (
	ConsolidationStatusInitializing ConsolidationStatusValue = "initializing"
	ConsolidationStatusProcessing   ConsolidationStatusValue = "processing"
	ConsolidationStatusCompleted    ConsolidationStatusValue = "completed"
	ConsolidationStatusPartial      ConsolidationStatusValue = "partially_completed"
	ConsolidationStatusFailed       ConsolidationStatusValue = "failed"
)

// IsTerminal reports whether the aggregate status can no longer change
func (s ConsolidationStatusValue) IsTerminal() bool {
	return s == ConsolidationStatusCompleted || s == ConsolidationStatusPartial || s == ConsolidationStatusFailed
}

// LegStatus is the execution state of one chain within a consolidation
type LegStatus string

const (
	LegStatusNotStarted LegStatus = "not_started"
	LegStatusSwapping   LegStatus = "swapping"
	LegStatusBridging   LegStatus = "bridging"
	LegStatusCompleted  LegStatus = "completed"
	LegStatusFailed     LegStatus = "failed"
	LegStatusRefunded   LegStatus = "refunded"
)

// IsTerminal reports whether a leg status can no longer change
func (s LegStatus) IsTerminal() bool {
	return s == LegStatusCompleted || s == LegStatusFailed || s == LegStatusRefunded
}

// TokenHolding is one dust balance on a source chain
type TokenHolding struct {
	Address  string          `json:"address"`
	Symbol   string          `json:"symbol"`
	Decimals int             `json:"decimals"`
	Amount   *big.Int        `json:"amount"`
	ValueUSD decimal.Decimal `json:"value_usd"`
}

// ConsolidationSource is one chain's dust to be consolidated
type ConsolidationSource struct {
	Chain              string          `json:"chain"`
	Tokens             []TokenHolding  `json:"tokens"`
	TotalValueUSD      decimal.Decimal `json:"total_value_usd"`
	NeedsBridge        bool            `json:"needs_bridge"`
	EstimatedOutputUSD decimal.Decimal `json:"estimated_output_usd"`
}

// ChainPlan is one chain's contribution to the overall consolidation plan
type ChainPlan struct {
	Chain             string          `json:"chain"`
	NeedsBridge       bool            `json:"needs_bridge"`
	SwapFeeUSD        decimal.Decimal `json:"swap_fee_usd"`
	GasFeeUSD         decimal.Decimal `json:"gas_fee_usd"`
	BridgeQuote       *BridgeQuote    `json:"bridge_quote,omitempty"`
	ExpectedOutputUSD decimal.Decimal `json:"expected_output_usd"`
	EstimatedTime     int             `json:"estimated_time"` // seconds
}

// BridgeFeeUSD returns the bridge portion of this chain's cost, zero when no bridge leg exists
func (p *ChainPlan) BridgeFeeUSD() decimal.Decimal {
	if p.BridgeQuote == nil {
		return decimal.Zero
	}
	return p.BridgeQuote.Fees.TotalUSD
}

// ConsolidationPlan is the full, costed, multi-chain route before execution
type ConsolidationPlan struct {
	PlanID                 string                `json:"plan_id"`
	UserID                 string                `json:"user_id"`
	UserAddress            string                `json:"user_address"`
	Status                 PlanStatus            `json:"status"`
	Sources                []ConsolidationSource `json:"sources"`
	ChainPlans             []ChainPlan           `json:"chain_plans"`
	DestinationChain       string                `json:"destination_chain"`
	DestinationToken       Token                 `json:"destination_token"`
	TotalInputValueUSD     decimal.Decimal       `json:"total_input_value_usd"`
	TotalFeesUSD           decimal.Decimal       `json:"total_fees_usd"`
	TotalExpectedOutputUSD decimal.Decimal       `json:"total_expected_output_usd"`
	FeePercentage          decimal.Decimal       `json:"fee_percentage"`
	EstimatedTotalTime     int                   `json:"estimated_total_time"` // seconds
	Priority               BridgePriority        `json:"priority"`
	CreatedAt              time.Time             `json:"created_at"`
	ExpiresAt              time.Time             `json:"expires_at"`
}

// Expired reports whether the plan's own expiry has passed
func (p *ConsolidationPlan) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

// ChainExecutionStatus is the execution-time state of one chain leg
type ChainExecutionStatus struct {
	Chain             string    `json:"chain"`
	Status            LegStatus `json:"status"`
	NeedsBridge       bool      `json:"needs_bridge"`
	SourceTxHash      string    `json:"source_tx_hash,omitempty"`
	DestinationTxHash string    `json:"destination_tx_hash,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ConsolidationStatusDetail is the execution-time view of a dispatched plan,
// keyed by a consolidation ID distinct from the plan ID
type ConsolidationStatusDetail struct {
	ConsolidationID  string                   `json:"consolidation_id"`
	PlanID           string                   `json:"plan_id"`
	UserID           string                   `json:"user_id"`
	Status           ConsolidationStatusValue `json:"status"`
	Chains           []ChainExecutionStatus   `json:"chains"`
	DestinationChain string                   `json:"destination_chain"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// ConsolidationJobData is the job descriptor handed off to the external
// execution worker through the cache
type ConsolidationJobData struct {
	ConsolidationID  string            `json:"consolidation_id"`
	PlanID           string            `json:"plan_id"`
	UserID           string            `json:"user_id"`
	UserAddress      string            `json:"user_address"`
	ChainPlans       []ChainPlan       `json:"chain_plans"`
	DestinationChain string            `json:"destination_chain"`
	DestinationToken Token             `json:"destination_token"`
	Signatures       map[string]string `json:"signatures,omitempty"`
	EnqueuedAt       time.Time         `json:"enqueued_at"`
}
