package relayfast

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dust-service/dust_service/internal/domain/entities"
	"github.com/dust-service/dust_service/internal/domain/errors"
)

func newTestClient(serverURL string) *Client {
	return NewClient(Config{
		BaseURL:           serverURL,
		APIKey:            "test-key",
		Timeout:           5 * time.Second,
		RequestsPerSecond: 100,
	}, zap.NewNop())
}

func quoteReq() *entities.BridgeQuoteRequest {
	return &entities.BridgeQuoteRequest{
		SourceChain:      "arbitrum",
		DestinationChain: "base",
		SourceToken:      entities.Token{Address: "0xusdt", Symbol: "USDT", Decimals: 6},
		DestinationToken: entities.Token{Address: "0xusdc", Symbol: "USDC", Decimals: 6},
		AmountIn:         big.NewInt(20000000),
		UserAddress:      "0xuser",
		Slippage:         0.005,
		Priority:         entities.PrioritySpeed,
	}
}

func TestSupportsRoute(t *testing.T) {
	t.Run("matches the active route pair", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/routes", r.URL.Path)
			assert.Equal(t, "arbitrum", r.URL.Query().Get("origin"))
			assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
			json.NewEncoder(w).Encode(routesResponse{Routes: []routeInfo{
				{Origin: "arbitrum", Destination: "optimism", Token: "0xusdt", Active: true},
				{Origin: "arbitrum", Destination: "base", Token: "0xusdt", Active: true},
			}})
		}))
		defer server.Close()

		ok, err := newTestClient(server.URL).SupportsRoute(context.Background(), "arbitrum", "base", entities.Token{Address: "0xusdt"})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("inactive routes do not count", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(routesResponse{Routes: []routeInfo{
				{Origin: "arbitrum", Destination: "base", Token: "0xusdt", Active: false},
			}})
		}))
		defer server.Close()

		ok, err := newTestClient(server.URL).SupportsRoute(context.Background(), "arbitrum", "base", entities.Token{Address: "0xusdt"})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestGetQuote(t *testing.T) {
	t.Run("opens an intent and normalizes it", func(t *testing.T) {
		expiresAt := time.Now().Add(90 * time.Second).Unix()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/intents/quote", r.URL.Path)

			var req intentQuoteRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "arbitrum", req.Origin)
			assert.Equal(t, 50, req.MaxSlippageBps)
			assert.True(t, req.PreferFastFill)
			assert.Equal(t, "0xuser", req.Recipient)

			json.NewEncoder(w).Encode(intentQuoteResponse{
				IntentID:      "int-77",
				AmountOut:     "19900000",
				MinAmountOut:  "19800500",
				AmountOutUsd:  "19.90",
				RelayerFee:    "80000",
				GasFee:        "20000",
				FeeUsd:        "0.10",
				FillTimeSecs:  45,
				ExpiresAtUnix: expiresAt,
				FillerAddress: "0xspoke",
			})
		}))
		defer server.Close()

		quote, err := newTestClient(server.URL).GetQuote(context.Background(), quoteReq())
		require.NoError(t, err)
		require.NotNil(t, quote)

		assert.Equal(t, "relayfast", quote.Provider)
		assert.Equal(t, big.NewInt(19900000), quote.AmountOut)
		assert.Equal(t, "19.9", quote.OutputValueUSD.String())
		assert.Equal(t, "0.1", quote.Fees.TotalUSD.String())
		assert.Equal(t, big.NewInt(80000), quote.Fees.RelayerFee)
		assert.Equal(t, 45, quote.EstimatedTime)
		assert.Equal(t, time.Unix(expiresAt, 0), quote.ExpiresAt)

		var rctx relayfastContext
		require.NoError(t, json.Unmarshal(quote.ProviderData, &rctx))
		assert.Equal(t, "int-77", rctx.IntentID)
		assert.Equal(t, "0xuser", rctx.Sender)
	})

	t.Run("below minimum maps to the sentinel error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(apiError{ErrorCode: "BELOW_MINIMUM", Detail: "amount below relayer minimum"})
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).GetQuote(context.Background(), quoteReq())
		assert.ErrorIs(t, err, errors.ErrAmountTooLow)
	})

	t.Run("no fillers returns nil without error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(apiError{ErrorCode: "NO_FILLERS", Detail: "no filler available"})
		}))
		defer server.Close()

		quote, err := newTestClient(server.URL).GetQuote(context.Background(), quoteReq())
		require.NoError(t, err)
		assert.Nil(t, quote)
	})
}

func TestBuildTransaction(t *testing.T) {
	t.Run("encodes the deposit with a fresh fill deadline", func(t *testing.T) {
		before := time.Now()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/intents/encode", r.URL.Path)

			var req intentEncodeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "int-77", req.IntentID)
			assert.Equal(t, "0xuser", req.SenderAddress)
			assert.Greater(t, req.FillDeadline, before.Unix())

			json.NewEncoder(w).Encode(intentEncodeResponse{
				SpokePool:     "0xspoke",
				Calldata:      "0xfeed",
				Value:         "0",
				GasEstimate:   180000,
				ApprovalToken: "0xusdt",
				ApprovalValue: "20000000",
			})
		}))
		defer server.Close()

		providerData, _ := json.Marshal(relayfastContext{IntentID: "int-77", Sender: "0xuser", SpokePool: "0xspoke"})
		tx, err := newTestClient(server.URL).BuildTransaction(context.Background(), &entities.BridgeQuote{
			QuoteID:      "relayfast_1_abc",
			ProviderData: providerData,
		})
		require.NoError(t, err)

		assert.Equal(t, "0xspoke", tx.To)
		assert.Equal(t, "0xfeed", tx.Data)
		require.NotNil(t, tx.RequiredApproval)
		assert.Equal(t, "0xspoke", tx.RequiredApproval.Spender)
		assert.Equal(t, big.NewInt(20000000), tx.RequiredApproval.Amount)
	})
}

func TestGetStatus(t *testing.T) {
	states := map[string]entities.BridgeReceiptStatus{
		"open":     entities.ReceiptStatusPending,
		"filling":  entities.ReceiptStatusBridging,
		"filled":   entities.ReceiptStatusCompleted,
		"expired":  entities.ReceiptStatusFailed,
		"refunded": entities.ReceiptStatusRefunded,
	}

	for upstream, want := range states {
		t.Run(upstream, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v2/intents/status", r.URL.Path)
				assert.Equal(t, "0xtx", r.URL.Query().Get("depositTx"))
				json.NewEncoder(w).Encode(intentStatusResponse{
					State:         upstream,
					DepositTx:     "0xtx",
					FillTx:        "0xfill",
					Confirmations: 3,
					InputAmount:   "20000000",
					OutputAmount:  "19900000",
				})
			}))
			defer server.Close()

			receipt, err := newTestClient(server.URL).GetStatus(context.Background(), "0xtx", "arbitrum")
			require.NoError(t, err)
			assert.Equal(t, want, receipt.Status)
			assert.Equal(t, "0xfill", receipt.DestinationTxHash)
		})
	}
}
