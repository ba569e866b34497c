package entities

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// BridgePriority selects the quote ranking policy
type BridgePriority string

const (
	PriorityCost  BridgePriority = "cost"  // Maximize net output after fees
	PrioritySpeed BridgePriority = "speed" // Minimize estimated completion time
)

// BridgeReceiptStatus represents the observed on-chain progress of one bridge leg
type BridgeReceiptStatus string

const (
	ReceiptStatusPending   BridgeReceiptStatus = "pending"   // Source tx submitted, not yet observed
	ReceiptStatusBridging  BridgeReceiptStatus = "bridging"  // Source confirmed, destination pending
	ReceiptStatusCompleted BridgeReceiptStatus = "completed" // Funds arrived on destination
	ReceiptStatusFailed    BridgeReceiptStatus = "failed"    // Error
	ReceiptStatusRefunded  BridgeReceiptStatus = "refunded"  // Returned to sender on source chain
)

// IsTerminal reports whether a receipt status can no longer change
func (s BridgeReceiptStatus) IsTerminal() bool {
	return s == ReceiptStatusCompleted || s == ReceiptStatusFailed || s == ReceiptStatusRefunded
}

// Token identifies a token on a specific chain
type Token struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// RouteStep is one hop in a bridge route
type RouteStep struct {
	Protocol         string   `json:"protocol"`
	AmountIn         *big.Int `json:"amount_in"`
	AmountOut        *big.Int `json:"amount_out"`
	ApprovalRequired bool     `json:"approval_required"`
}

// FeeBreakdown itemizes the cost of a bridge quote
type FeeBreakdown struct {
	BridgeFee  *big.Int        `json:"bridge_fee"`
	GasFee     *big.Int        `json:"gas_fee"`
	RelayerFee *big.Int        `json:"relayer_fee"`
	TotalUSD   decimal.Decimal `json:"total_usd"`
}

// BridgeQuoteRequest is the normalized quote request passed to every provider
type BridgeQuoteRequest struct {
	SourceChain      string         `json:"source_chain"`
	DestinationChain string         `json:"destination_chain"`
	SourceToken      Token          `json:"source_token"`
	DestinationToken Token          `json:"destination_token"`
	AmountIn         *big.Int       `json:"amount_in"`
	UserAddress      string         `json:"user_address"`
	Slippage         float64        `json:"slippage"`
	Priority         BridgePriority `json:"priority"`
}

// BridgeQuote is a time-bounded, priced offer to execute one bridge leg
type BridgeQuote struct {
	QuoteID          string          `json:"quote_id"`
	Provider         string          `json:"provider"`
	SourceChain      string          `json:"source_chain"`
	DestinationChain string          `json:"destination_chain"`
	SourceToken      Token           `json:"source_token"`
	DestinationToken Token           `json:"destination_token"`
	AmountIn         *big.Int        `json:"amount_in"`
	AmountOut        *big.Int        `json:"amount_out"`
	MinAmountOut     *big.Int        `json:"min_amount_out"`
	OutputValueUSD   decimal.Decimal `json:"output_value_usd"`
	Fees             FeeBreakdown    `json:"fees"`
	Route            []RouteStep     `json:"route"`
	EstimatedTime    int             `json:"estimated_time"` // seconds
	Slippage         float64         `json:"slippage"`
	IssuedAt         time.Time       `json:"issued_at"`
	ExpiresAt        time.Time       `json:"expires_at"`

	// ProviderData carries whatever provider-specific context is needed to
	// later build a transaction from this quote. Opaque to everything but
	// the issuing provider.
	ProviderData json.RawMessage `json:"provider_data,omitempty"`
}

// Expired reports whether the quote's validity window has lapsed
func (q *BridgeQuote) Expired(now time.Time) bool {
	return !q.ExpiresAt.After(now)
}

// TokenApproval describes a required spending allowance before execution
type TokenApproval struct {
	Token   string   `json:"token"`
	Spender string   `json:"spender"`
	Amount  *big.Int `json:"amount"`
}

// TransactionDescriptor is an encoded, ready-to-sign bridge transaction
type TransactionDescriptor struct {
	To               string         `json:"to"`
	Data             string         `json:"data"`
	Value            *big.Int       `json:"value"`
	GasLimit         uint64         `json:"gas_limit"`
	RequiredApproval *TokenApproval `json:"required_approval,omitempty"`
}

// BridgeReceipt is the normalized view of one bridge leg's on-chain progress
type BridgeReceipt struct {
	Status             BridgeReceiptStatus `json:"status"`
	SourceTxHash       string              `json:"source_tx_hash"`
	DestinationTxHash  string              `json:"destination_tx_hash,omitempty"`
	SourceChain        string              `json:"source_chain"`
	DestinationChain   string              `json:"destination_chain,omitempty"`
	Confirmations      int                 `json:"confirmations"`
	AmountIn           *big.Int            `json:"amount_in,omitempty"`
	AmountOut          *big.Int            `json:"amount_out,omitempty"`
	Provider           string              `json:"provider,omitempty"`
	ErrorMessage       string              `json:"error_message,omitempty"`
	SourceTimestamp    time.Time           `json:"source_timestamp,omitempty"`
	CompletedTimestamp time.Time           `json:"completed_timestamp,omitempty"`
}
