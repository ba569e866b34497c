package entities

import "github.com/shopspring/decimal"

// SourceChainInput is one chain's token list as supplied by the caller
type SourceChainInput struct {
	Chain  string         `json:"chain" binding:"required"`
	Tokens []TokenHolding `json:"tokens" binding:"required"`
}

// ConsolidationQuoteRequest asks for a full multi-chain consolidation plan
type ConsolidationQuoteRequest struct {
	UserID           string             `json:"user_id" binding:"required"`
	UserAddress      string             `json:"user_address" binding:"required"`
	Sources          []SourceChainInput `json:"sources" binding:"required"`
	DestinationChain string             `json:"destination_chain" binding:"required"`
	DestinationToken Token              `json:"destination_token" binding:"required"`
	Priority         BridgePriority     `json:"priority,omitempty"`
}

// ConsolidationQuoteResult wraps a plan or a structured failure
type ConsolidationQuoteResult struct {
	Success  bool               `json:"success"`
	Plan     *ConsolidationPlan `json:"plan,omitempty"`
	Error    string             `json:"error,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
}

// ConsolidationExecuteRequest dispatches a previously quoted plan
type ConsolidationExecuteRequest struct {
	PlanID      string            `json:"plan_id" binding:"required"`
	UserID      string            `json:"user_id" binding:"required"`
	UserAddress string            `json:"user_address,omitempty"`
	Signatures  map[string]string `json:"signatures,omitempty"`
}

// ConsolidationExecuteResult reports the outcome of a dispatch
type ConsolidationExecuteResult struct {
	Success         bool                       `json:"success"`
	ConsolidationID string                     `json:"consolidation_id,omitempty"`
	Status          *ConsolidationStatusDetail `json:"status,omitempty"`
	Error           string                     `json:"error,omitempty"`
}

// ChainSimulation is the dry-run view of one source chain
type ChainSimulation struct {
	Chain             string          `json:"chain"`
	SwapAvailable     bool            `json:"swap_available"`
	BridgeAvailable   bool            `json:"bridge_available"`
	NeedsBridge       bool            `json:"needs_bridge"`
	InputValueUSD     decimal.Decimal `json:"input_value_usd"`
	ExpectedOutputUSD decimal.Decimal `json:"expected_output_usd"`
}

// ConsolidationSimulationResult is a quote reshaped into a dry-run preview
type ConsolidationSimulationResult struct {
	Success                bool              `json:"success"`
	Chains                 []ChainSimulation `json:"chains,omitempty"`
	TotalInputValueUSD     decimal.Decimal   `json:"total_input_value_usd"`
	TotalExpectedOutputUSD decimal.Decimal   `json:"total_expected_output_usd"`
	Profitable             bool              `json:"profitable"`
	Error                  string            `json:"error,omitempty"`
	Warnings               []string          `json:"warnings,omitempty"`
}

// ErrorResponse is the standard API error envelope
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
