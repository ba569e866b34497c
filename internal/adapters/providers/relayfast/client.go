// Package relayfast implements the bridge provider contract against the
// RelayFast intent-settlement REST API.
package relayfast

import (
	"bytes"
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dust-service/dust_service/internal/domain/entities"
	"github.com/dust-service/dust_service/internal/domain/errors"
)

const (
	providerName   = "relayfast"
	defaultTimeout = 15 * time.Second

	// fillDeadline bounds how long a filler may take once the deposit lands;
	// recomputed from the current time on every build
	fillDeadline = 20 * time.Minute
)

// Config represents RelayFast client configuration
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client is a RelayFast API client implementing the provider contract
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	logger         *zap.Logger
}

// NewClient creates a new RelayFast provider client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10
	}

	cbSettings := gobreaker.Settings{
		Name:        "RelayFastAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("RelayFast circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		rateLimiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		logger:         logger,
	}
}

// Name identifies this provider
func (c *Client) Name() string {
	return providerName
}

// SupportsRoute lists active routes for the origin chain and matches the pair
func (c *Client) SupportsRoute(ctx context.Context, sourceChain, destChain string, token entities.Token) (bool, error) {
	endpoint := fmt.Sprintf("/v2/routes?origin=%s&destination=%s&token=%s",
		url.QueryEscape(sourceChain), url.QueryEscape(destChain), url.QueryEscape(token.Address))

	var resp routesResponse
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return false, fmt.Errorf("list routes failed: %w", err)
	}

	for _, r := range resp.Routes {
		if r.Active && strings.EqualFold(r.Origin, sourceChain) && strings.EqualFold(r.Destination, destChain) {
			return true, nil
		}
	}
	return false, nil
}

// GetQuote opens a priced intent for the transfer
func (c *Client) GetQuote(ctx context.Context, req *entities.BridgeQuoteRequest) (*entities.BridgeQuote, error) {
	body := intentQuoteRequest{
		Origin:          req.SourceChain,
		Destination:     req.DestinationChain,
		OriginToken:     req.SourceToken.Address,
		DestToken:       req.DestinationToken.Address,
		AmountIn:        req.AmountIn.String(),
		MaxSlippageBps:  int(req.Slippage * 10000),
		Sender:          req.UserAddress,
		Recipient:       req.UserAddress,
		PreferFastFill:  req.Priority == entities.PrioritySpeed,
		RefundOnFailure: true,
	}

	var resp intentQuoteResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v2/intents/quote", body, &resp); err != nil {
		var apiErr *apiError
		if goerrors.As(err, &apiErr) {
			switch apiErr.ErrorCode {
			case "BELOW_MINIMUM":
				return nil, errors.ErrAmountTooLow
			case "NO_FILLERS", "UNSUPPORTED_ROUTE":
				return nil, nil
			}
		}
		return nil, fmt.Errorf("intent quote failed: %w", err)
	}

	return c.toQuote(req, &resp)
}

func (c *Client) toQuote(req *entities.BridgeQuoteRequest, resp *intentQuoteResponse) (*entities.BridgeQuote, error) {
	amountOut, ok := new(big.Int).SetString(resp.AmountOut, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amountOut %q", resp.AmountOut)
	}
	minOut, ok := new(big.Int).SetString(resp.MinAmountOut, 10)
	if !ok {
		return nil, fmt.Errorf("invalid minAmountOut %q", resp.MinAmountOut)
	}
	relayerFee, _ := new(big.Int).SetString(resp.RelayerFee, 10)
	gasFee, _ := new(big.Int).SetString(resp.GasFee, 10)
	outputUSD, err := decimal.NewFromString(resp.AmountOutUsd)
	if err != nil {
		return nil, fmt.Errorf("invalid amountOutUsd %q", resp.AmountOutUsd)
	}
	feeUSD, err := decimal.NewFromString(resp.FeeUsd)
	if err != nil {
		return nil, fmt.Errorf("invalid feeUsd %q", resp.FeeUsd)
	}

	providerData, err := json.Marshal(relayfastContext{
		IntentID:  resp.IntentID,
		Sender:    req.UserAddress,
		SpokePool: resp.FillerAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal provider data: %w", err)
	}

	now := time.Now()
	return &entities.BridgeQuote{
		QuoteID:          fmt.Sprintf("%s_%d_%s", providerName, now.UnixMilli(), uuid.NewString()[:8]),
		Provider:         providerName,
		SourceChain:      req.SourceChain,
		DestinationChain: req.DestinationChain,
		SourceToken:      req.SourceToken,
		DestinationToken: req.DestinationToken,
		AmountIn:         new(big.Int).Set(req.AmountIn),
		AmountOut:        amountOut,
		MinAmountOut:     minOut,
		OutputValueUSD:   outputUSD,
		Fees: entities.FeeBreakdown{
			BridgeFee:  big.NewInt(0),
			GasFee:     gasFee,
			RelayerFee: relayerFee,
			TotalUSD:   feeUSD,
		},
		Route: []entities.RouteStep{{
			Protocol:         providerName,
			AmountIn:         new(big.Int).Set(req.AmountIn),
			AmountOut:        amountOut,
			ApprovalRequired: true,
		}},
		EstimatedTime: resp.FillTimeSecs,
		Slippage:      req.Slippage,
		IssuedAt:      now,
		ExpiresAt:     time.Unix(resp.ExpiresAtUnix, 0),
		ProviderData:  providerData,
	}, nil
}

// BuildTransaction encodes the deposit call for a previously opened intent,
// with the fill deadline recomputed from the current time
func (c *Client) BuildTransaction(ctx context.Context, quote *entities.BridgeQuote) (*entities.TransactionDescriptor, error) {
	var rctx relayfastContext
	if err := json.Unmarshal(quote.ProviderData, &rctx); err != nil {
		return nil, fmt.Errorf("decode provider data: %w", err)
	}

	body := intentEncodeRequest{
		IntentID:      rctx.IntentID,
		FillDeadline:  time.Now().Add(fillDeadline).Unix(),
		SenderAddress: rctx.Sender,
	}

	var resp intentEncodeResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v2/intents/encode", body, &resp); err != nil {
		return nil, fmt.Errorf("encode intent failed: %w", err)
	}

	value, ok := new(big.Int).SetString(resp.Value, 10)
	if !ok {
		value = big.NewInt(0)
	}

	tx := &entities.TransactionDescriptor{
		To:       resp.SpokePool,
		Data:     resp.Calldata,
		Value:    value,
		GasLimit: resp.GasEstimate,
	}
	if resp.ApprovalToken != "" {
		amount, _ := new(big.Int).SetString(resp.ApprovalValue, 10)
		tx.RequiredApproval = &entities.TokenApproval{
			Token:   resp.ApprovalToken,
			Spender: resp.SpokePool,
			Amount:  amount,
		}
	}
	return tx, nil
}

// GetStatus reports intent progress by deposit transaction hash
func (c *Client) GetStatus(ctx context.Context, txHash, chain string) (*entities.BridgeReceipt, error) {
	endpoint := fmt.Sprintf("/v2/intents/status?depositTx=%s&origin=%s", url.QueryEscape(txHash), url.QueryEscape(chain))

	var resp intentStatusResponse
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("get intent status failed: %w", err)
	}

	receipt := &entities.BridgeReceipt{
		Status:            mapState(resp.State),
		SourceTxHash:      resp.DepositTx,
		DestinationTxHash: resp.FillTx,
		SourceChain:       chain,
		Confirmations:     resp.Confirmations,
	}
	if amountIn, ok := new(big.Int).SetString(resp.InputAmount, 10); ok {
		receipt.AmountIn = amountIn
	}
	if amountOut, ok := new(big.Int).SetString(resp.OutputAmount, 10); ok {
		receipt.AmountOut = amountOut
	}
	if resp.DepositedAt > 0 {
		receipt.SourceTimestamp = time.Unix(resp.DepositedAt, 0)
	}
	if resp.FilledAt > 0 {
		receipt.CompletedTimestamp = time.Unix(resp.FilledAt, 0)
	}
	return receipt, nil
}

func mapState(state string) entities.BridgeReceiptStatus {
	switch state {
	case "filling":
		return entities.ReceiptStatusBridging
	case "filled":
		return entities.ReceiptStatusCompleted
	case "expired":
		return entities.ReceiptStatusFailed
	case "refunded":
		return entities.ReceiptStatusRefunded
	default:
		return entities.ReceiptStatusPending
	}
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, response interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.doRequestInternal(ctx, method, endpoint, body, response)
	})
	return err
}

func (c *Client) doRequestInternal(ctx context.Context, method, endpoint string, body, response interface{}) error {
	fullURL := c.config.BaseURL + endpoint

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("X-Api-Key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp apiError
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Detail != "" {
			errResp.StatusCode = resp.StatusCode
			return &errResp
		}
		return fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	if response != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, response); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
