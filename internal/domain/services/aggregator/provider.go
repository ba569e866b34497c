package aggregator

import (
	"context"

	"github.com/dust-service/dust_service/internal/domain/entities"
)

// Provider is the capability contract every bridge protocol adapter implements.
// The aggregator depends only on this interface; each concrete protocol is a
// separate implementing type.
type Provider interface {
	// Name identifies the provider; used for deterministic tie-breaking,
	// quote attribution, and logging
	Name() string

	// SupportsRoute probes whether the provider can bridge the token between
	// the two chains. May require a network round trip (e.g. transfer limits).
	SupportsRoute(ctx context.Context, sourceChain, destChain string, token entities.Token) (bool, error)

	// GetQuote prices a bridge leg. Returns (nil, nil) when the provider has
	// no route for the pair, and errors.ErrAmountTooLow when the amount is
	// below the provider's economic minimum.
	GetQuote(ctx context.Context, req *entities.BridgeQuoteRequest) (*entities.BridgeQuote, error)

	// BuildTransaction encodes the on-chain call for a quote this provider
	// issued. Time-sensitive fields (fill deadlines) are recomputed relative
	// to the current time, not the original quote time.
	BuildTransaction(ctx context.Context, quote *entities.BridgeQuote) (*entities.TransactionDescriptor, error)

	// GetStatus reports observed progress for a source transaction
	GetStatus(ctx context.Context, txHash, chain string) (*entities.BridgeReceipt, error)
}
