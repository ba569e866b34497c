package hopx

// limitsResponse is the reply to GET /v1/limits
type limitsResponse struct {
	Token     string `json:"token"`
	FromChain string `json:"fromChain"`
	ToChain   string `json:"toChain"`
	MinAmount string `json:"minAmount"`
	MaxAmount string `json:"maxAmount"`
}

// quoteRequest is the body of POST /v1/quote
type quoteRequest struct {
	FromChain   string  `json:"fromChain"`
	ToChain     string  `json:"toChain"`
	FromToken   string  `json:"fromToken"`
	ToToken     string  `json:"toToken"`
	Amount      string  `json:"amount"`
	Slippage    float64 `json:"slippage"`
	FromAddress string  `json:"fromAddress"`
}

// quoteResponse is the reply to POST /v1/quote
type quoteResponse struct {
	QuoteID        string      `json:"quoteId"`
	AmountOut      string      `json:"amountOut"`
	AmountOutMin   string      `json:"amountOutMin"`
	AmountOutUsd   string      `json:"amountOutUsd"`
	BondingFee     string      `json:"bondingFee"`
	DestinationFee string      `json:"destinationFee"`
	TotalFeeUsd    string      `json:"totalFeeUsd"`
	EstimatedTime  int         `json:"estimatedTime"` // seconds
	ValidUntil     int64       `json:"validUntil"`    // unix seconds
	Steps          []routeStep `json:"steps"`
}

type routeStep struct {
	Protocol      string `json:"protocol"`
	AmountIn      string `json:"amountIn"`
	AmountOut     string `json:"amountOut"`
	NeedsApproval bool   `json:"needsApproval"`
}

// encodeRequest is the body of POST /v1/encode
type encodeRequest struct {
	QuoteID   string `json:"quoteId"`
	Recipient string `json:"recipient"`
	Deadline  int64  `json:"deadline"` // unix seconds, recomputed at build time
}

// encodeResponse is the reply to POST /v1/encode
type encodeResponse struct {
	To       string `json:"to"`
	Calldata string `json:"calldata"`
	Value    string `json:"value"`
	GasLimit uint64 `json:"gasLimit"`
	Approval *struct {
		Token   string `json:"token"`
		Spender string `json:"spender"`
		Amount  string `json:"amount"`
	} `json:"approval,omitempty"`
}

// statusResponse is the reply to GET /v1/status
type statusResponse struct {
	Status        string `json:"status"` // pending, bonded, settled, failed, refunded
	SourceTx      string `json:"sourceTx"`
	DestinationTx string `json:"destinationTx"`
	Confirmations int    `json:"confirmations"`
	AmountIn      string `json:"amountIn"`
	AmountOut     string `json:"amountOut"`
	SourceTime    int64  `json:"sourceTime"`
	SettledTime   int64  `json:"settledTime"`
}

// hopxContext rides along in the quote's provider data so a later encode
// call can reference the upstream quote
type hopxContext struct {
	UpstreamQuoteID string `json:"upstream_quote_id"`
	Recipient       string `json:"recipient"`
}

// errorResponse is the API error envelope
type errorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *errorResponse) Error() string {
	return e.Message
}
