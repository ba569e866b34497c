package relayfast

// routesResponse is the reply to GET /v2/routes
type routesResponse struct {
	Routes []routeInfo `json:"routes"`
}

type routeInfo struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Token       string `json:"token"`
	Active      bool   `json:"active"`
}

// intentQuoteRequest is the body of POST /v2/intents/quote
type intentQuoteRequest struct {
	Origin          string `json:"origin"`
	Destination     string `json:"destination"`
	OriginToken     string `json:"originToken"`
	DestToken       string `json:"destToken"`
	AmountIn        string `json:"amountIn"`
	MaxSlippageBps  int    `json:"maxSlippageBps"`
	Sender          string `json:"sender"`
	Recipient       string `json:"recipient"`
	PreferFastFill  bool   `json:"preferFastFill"`
	RefundOnFailure bool   `json:"refundOnFailure"`
}

// intentQuoteResponse is the reply to POST /v2/intents/quote
type intentQuoteResponse struct {
	IntentID      string `json:"intentId"`
	AmountOut     string `json:"amountOut"`
	MinAmountOut  string `json:"minAmountOut"`
	AmountOutUsd  string `json:"amountOutUsd"`
	RelayerFee    string `json:"relayerFee"`
	GasFee        string `json:"gasFee"`
	FeeUsd        string `json:"feeUsd"`
	FillTimeSecs  int    `json:"fillTimeSecs"`
	ExpiresAtUnix int64  `json:"expiresAt"`
	FillerAddress string `json:"fillerAddress"`
}

// intentEncodeRequest is the body of POST /v2/intents/encode
type intentEncodeRequest struct {
	IntentID      string `json:"intentId"`
	FillDeadline  int64  `json:"fillDeadline"` // unix seconds, recomputed per build
	SenderAddress string `json:"senderAddress"`
}

// intentEncodeResponse is the reply to POST /v2/intents/encode
type intentEncodeResponse struct {
	SpokePool     string `json:"spokePool"`
	Calldata      string `json:"calldata"`
	Value         string `json:"value"`
	GasEstimate   uint64 `json:"gasEstimate"`
	ApprovalToken string `json:"approvalToken,omitempty"`
	ApprovalValue string `json:"approvalValue,omitempty"`
}

// intentStatusResponse is the reply to GET /v2/intents/status
type intentStatusResponse struct {
	State         string `json:"state"` // open, filling, filled, expired, refunded
	DepositTx     string `json:"depositTx"`
	FillTx        string `json:"fillTx"`
	Confirmations int    `json:"confirmations"`
	InputAmount   string `json:"inputAmount"`
	OutputAmount  string `json:"outputAmount"`
	DepositedAt   int64  `json:"depositedAt"`
	FilledAt      int64  `json:"filledAt"`
}

// relayfastContext is the provider-specific build context carried on the quote
type relayfastContext struct {
	IntentID  string `json:"intent_id"`
	Sender    string `json:"sender"`
	SpokePool string `json:"spoke_pool"`
}

// apiError is the API error envelope
type apiError struct {
	ErrorCode  string `json:"errorCode"`
	Detail     string `json:"detail"`
	StatusCode int    `json:"-"`
}

func (e *apiError) Error() string {
	return e.Detail
}
