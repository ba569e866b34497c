// Package hopx implements the bridge provider contract against the HopX
// bonded-relay REST API.
package hopx

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
	providerName   = "hopx"
	defaultTimeout = 15 * time.Second

	// fillDeadline is how long an encoded transaction remains fillable,
	// recomputed from the current time on every build
	fillDeadline = 30 * time.Minute
)

// Config represents HopX client configuration
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client is a HopX API client implementing the provider contract
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	logger         *zap.Logger
}

// NewClient creates a new HopX provider client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10
	}

	cbSettings := gobreaker.Settings{
		Name:        "HopXAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("HopX circuit breaker state changed",
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

// SupportsRoute checks transfer limits for the pair; a route with a nonzero
// maximum is considered supported
func (c *Client) SupportsRoute(ctx context.Context, sourceChain, destChain string, token entities.Token) (bool, error) {
	endpoint := fmt.Sprintf("/v1/limits?token=%s&fromChain=%s&toChain=%s",
		url.QueryEscape(token.Address), url.QueryEscape(sourceChain), url.QueryEscape(destChain))

	var resp limitsResponse
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		var apiErr *errorResponse
		if goerrors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("get limits failed: %w", err)
	}

	maxAmount, ok := new(big.Int).SetString(resp.MaxAmount, 10)
	return ok && maxAmount.Sign() > 0, nil
}

// GetQuote prices a bridge leg through HopX
func (c *Client) GetQuote(ctx context.Context, req *entities.BridgeQuoteRequest) (*entities.BridgeQuote, error) {
	body := quoteRequest{
		FromChain:   req.SourceChain,
		ToChain:     req.DestinationChain,
		FromToken:   req.SourceToken.Address,
		ToToken:     req.DestinationToken.Address,
		Amount:      req.AmountIn.String(),
		Slippage:    req.Slippage,
		FromAddress: req.UserAddress,
	}

	var resp quoteResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v1/quote", body, &resp); err != nil {
		var apiErr *errorResponse
		if goerrors.As(err, &apiErr) {
			switch apiErr.Code {
			case "AMOUNT_TOO_LOW":
				return nil, errors.ErrAmountTooLow
			case "ROUTE_NOT_FOUND":
				return nil, nil
			}
		}
		return nil, fmt.Errorf("get quote failed: %w", err)
	}

	return c.toQuote(req, &resp)
}

func (c *Client) toQuote(req *entities.BridgeQuoteRequest, resp *quoteResponse) (*entities.BridgeQuote, error) {
	amountOut, ok := new(big.Int).SetString(resp.AmountOut, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amountOut %q", resp.AmountOut)
	}
	minOut, ok := new(big.Int).SetString(resp.AmountOutMin, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amountOutMin %q", resp.AmountOutMin)
	}
	bondingFee, _ := new(big.Int).SetString(resp.BondingFee, 10)
	destFee, _ := new(big.Int).SetString(resp.DestinationFee, 10)
	outputUSD, err := decimal.NewFromString(resp.AmountOutUsd)
	if err != nil {
		return nil, fmt.Errorf("invalid amountOutUsd %q", resp.AmountOutUsd)
	}
	totalFeeUSD, err := decimal.NewFromString(resp.TotalFeeUsd)
	if err != nil {
		return nil, fmt.Errorf("invalid totalFeeUsd %q", resp.TotalFeeUsd)
	}

	route := make([]entities.RouteStep, 0, len(resp.Steps))
	for _, s := range resp.Steps {
		in, _ := new(big.Int).SetString(s.AmountIn, 10)
		out, _ := new(big.Int).SetString(s.AmountOut, 10)
		route = append(route, entities.RouteStep{
			Protocol:         s.Protocol,
			AmountIn:         in,
			AmountOut:        out,
			ApprovalRequired: s.NeedsApproval,
		})
	}

	providerData, err := json.Marshal(hopxContext{UpstreamQuoteID: resp.QuoteID, Recipient: req.UserAddress})
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
			BridgeFee:  bondingFee,
			GasFee:     destFee,
			RelayerFee: big.NewInt(0),
			TotalUSD:   totalFeeUSD,
		},
		Route:         route,
		EstimatedTime: resp.EstimatedTime,
		Slippage:      req.Slippage,
		IssuedAt:      now,
		ExpiresAt:     time.Unix(resp.ValidUntil, 0),
		ProviderData:  providerData,
	}, nil
}

// BuildTransaction encodes the on-chain call for a previously issued quote.
// The fill deadline is recomputed relative to the current time, not the
// original quote time.
func (c *Client) BuildTransaction(ctx context.Context, quote *entities.BridgeQuote) (*entities.TransactionDescriptor, error) {
	var hctx hopxContext
	if err := json.Unmarshal(quote.ProviderData, &hctx); err != nil {
		return nil, fmt.Errorf("decode provider data: %w", err)
	}

	body := encodeRequest{
		QuoteID:   hctx.UpstreamQuoteID,
		Recipient: hctx.Recipient,
		Deadline:  time.Now().Add(fillDeadline).Unix(),
	}

	var resp encodeResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v1/encode", body, &resp); err != nil {
		return nil, fmt.Errorf("encode transaction failed: %w", err)
	}

	value, ok := new(big.Int).SetString(resp.Value, 10)
	if !ok {
		value = big.NewInt(0)
	}

	tx := &entities.TransactionDescriptor{
		To:       resp.To,
		Data:     resp.Calldata,
		Value:    value,
		GasLimit: resp.GasLimit,
	}
	if resp.Approval != nil {
		amount, _ := new(big.Int).SetString(resp.Approval.Amount, 10)
		tx.RequiredApproval = &entities.TokenApproval{
			Token:   resp.Approval.Token,
			Spender: resp.Approval.Spender,
			Amount:  amount,
		}
	}
	return tx, nil
}

// GetStatus reports progress of a transfer by source transaction hash
func (c *Client) GetStatus(ctx context.Context, txHash, chain string) (*entities.BridgeReceipt, error) {
	endpoint := fmt.Sprintf("/v1/status?txHash=%s&chain=%s", url.QueryEscape(txHash), url.QueryEscape(chain))

	var resp statusResponse
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("get status failed: %w", err)
	}

	receipt := &entities.BridgeReceipt{
		Status:            mapStatus(resp.Status),
		SourceTxHash:      resp.SourceTx,
		DestinationTxHash: resp.DestinationTx,
		SourceChain:       chain,
		Confirmations:     resp.Confirmations,
	}
	if amountIn, ok := new(big.Int).SetString(resp.AmountIn, 10); ok {
		receipt.AmountIn = amountIn
	}
	if amountOut, ok := new(big.Int).SetString(resp.AmountOut, 10); ok {
		receipt.AmountOut = amountOut
	}
	if resp.SourceTime > 0 {
		receipt.SourceTimestamp = time.Unix(resp.SourceTime, 0)
	}
	if resp.SettledTime > 0 {
		receipt.CompletedTimestamp = time.Unix(resp.SettledTime, 0)
	}
	return receipt, nil
}

func mapStatus(status string) entities.BridgeReceiptStatus {
	switch status {
	case "bonded":
		return entities.ReceiptStatusBridging
	case "settled":
		return entities.ReceiptStatusCompleted
	case "failed":
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
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
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
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
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
