// Package aggregator normalizes heterogeneous bridge protocols behind one
// quote/build/status surface. Provider calls fan out concurrently with
// independent timeouts so one slow provider cannot stall a quote.
package aggregator

import (
	"context"
	goerrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dust-service/dust_service/internal/domain/entities"
	"github.com/dust-service/dust_service/internal/domain/errors"
	"github.com/dust-service/dust_service/internal/infrastructure/cache"
	"github.com/dust-service/dust_service/pkg/metrics"
)

const (
	quoteContextKeyPrefix = "bridge:quote:"
	routeSupportKeyPrefix = "bridge:route:"
	txProviderKeyPrefix   = "bridge:txprovider:"

	txProviderTTL = 24 * time.Hour
)

// Config tunes the aggregator's fan-out and caching behavior
type Config struct {
	QuoteTimeout    time.Duration // per-provider quote deadline
	RouteSupportTTL time.Duration // cache lifetime for supported routes
	RouteFailureTTL time.Duration // cache lifetime for unsupported routes
	QuoteValidity   time.Duration // fallback context TTL when a quote omits expiry
}

// quoteContext is everything needed to later build a transaction from a
// previously issued quote, keyed by the quote's unique identifier
type quoteContext struct {
	Provider string               `json:"provider"`
	Quote    *entities.BridgeQuote `json:"quote"`
}

// Aggregator fans quote requests out to registered providers and selects a
// winner by the requested priority
type Aggregator struct {
	providers []Provider
	store     cache.Store
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an aggregator over an explicit, injected provider list.
// Registration order is the deterministic tie-break order.
func New(providers []Provider, store cache.Store, cfg Config, logger *zap.Logger) *Aggregator {
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 10 * time.Second
	}
	if cfg.RouteSupportTTL <= 0 {
		cfg.RouteSupportTTL = 5 * time.Minute
	}
	if cfg.RouteFailureTTL <= 0 {
		cfg.RouteFailureTTL = 30 * time.Second
	}
	if cfg.QuoteValidity <= 0 {
		cfg.QuoteValidity = 2 * time.Minute
	}
	return &Aggregator{
		providers: providers,
		store:     store,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Providers returns the registered provider names in registration order
func (a *Aggregator) Providers() []string {
	names := make([]string, len(a.providers))
	for i, p := range a.providers {
		names[i] = p.Name()
	}
	return names
}

// SupportsRoute reports whether at least one provider can bridge the token
// between the two chains. Results are memoized: supported routes for
// RouteSupportTTL, unsupported ones for the much shorter RouteFailureTTL so
// a transient provider outage does not blacklist a route for long.
func (a *Aggregator) SupportsRoute(ctx context.Context, sourceChain, destChain string, token entities.Token) bool {
	key := fmt.Sprintf("%s%s:%s:%s", routeSupportKeyPrefix, sourceChain, destChain, token.Address)

	var cached bool
	if err := a.store.Get(ctx, key, &cached); err == nil {
		return cached
	}

	supported := a.probeRouteSupport(ctx, sourceChain, destChain, token)

	ttl := a.cfg.RouteSupportTTL
	if !supported {
		ttl = a.cfg.RouteFailureTTL
	}
	if err := a.store.Set(ctx, key, supported, ttl); err != nil {
		a.logger.Warn("Failed to cache route support", zap.String("key", key), zap.Error(err))
	}

	return supported
}

func (a *Aggregator) probeRouteSupport(ctx context.Context, sourceChain, destChain string, token entities.Token) bool {
	type probeResult struct{ supported bool }
	results := make(chan probeResult, len(a.providers))

	for _, p := range a.providers {
		go func(p Provider) {
			probeCtx, cancel := context.WithTimeout(ctx, a.cfg.QuoteTimeout)
			defer cancel()

			ok, err := p.SupportsRoute(probeCtx, sourceChain, destChain, token)
			if err != nil {
				// Treated as "not supported"; a failing provider never
				// blocks the overall probe
				a.logger.Debug("Route support probe failed",
					zap.String("provider", p.Name()),
					zap.String("source_chain", sourceChain),
					zap.String("dest_chain", destChain),
					zap.Error(err))
				ok = false
			}
			results <- probeResult{supported: ok}
		}(p)
	}

	supported := false
	for range a.providers {
		if r := <-results; r.supported {
			supported = true
		}
	}
	return supported
}

// GetQuote fans the request out to all providers concurrently, discards the
// ones that error, have no route, or reject the amount, and selects the
// best survivor for the requested priority. Returns (nil, nil) when zero
// providers produced a usable quote. The winning quote's build context is
// cached under its quote ID for the quote's own validity window.
func (a *Aggregator) GetQuote(ctx context.Context, req *entities.BridgeQuoteRequest) (*entities.BridgeQuote, error) {
	if len(a.providers) == 0 {
		return nil, nil
	}

	// Index-addressed so candidates stay in registration order for
	// deterministic tie-breaking
	candidates := make([]*entities.BridgeQuote, len(a.providers))
	done := make(chan int, len(a.providers))

	for i, p := range a.providers {
		go func(i int, p Provider) {
			defer func() { done <- i }()

			quoteCtx, cancel := context.WithTimeout(ctx, a.cfg.QuoteTimeout)
			defer cancel()

			start := a.now()
			quote, err := p.GetQuote(quoteCtx, req)
			metrics.ProviderQuoteDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

			switch {
			case goerrors.Is(err, errors.ErrAmountTooLow):
				metrics.ProviderQuoteErrors.WithLabelValues(p.Name(), "amount_too_low").Inc()
				a.logger.Debug("Provider rejected amount as too low",
					zap.String("provider", p.Name()),
					zap.String("source_chain", req.SourceChain))
			case err != nil:
				metrics.ProviderQuoteErrors.WithLabelValues(p.Name(), "error").Inc()
				a.logger.Warn("Provider quote failed",
					zap.String("provider", p.Name()),
					zap.String("source_chain", req.SourceChain),
					zap.String("dest_chain", req.DestinationChain),
					zap.Error(err))
			case quote == nil:
				metrics.ProviderQuoteErrors.WithLabelValues(p.Name(), "no_route").Inc()
			default:
				quote.Provider = p.Name()
				candidates[i] = quote
			}
		}(i, p)
	}

	for range a.providers {
		<-done
	}

	best := SelectQuote(req.Priority, candidates)
	if best == nil {
		return nil, nil
	}

	if err := a.cacheQuoteContext(ctx, best); err != nil {
		return nil, fmt.Errorf("cache quote context: %w", err)
	}

	metrics.QuotesSelected.WithLabelValues(best.Provider, string(req.Priority)).Inc()
	a.logger.Info("Bridge quote selected",
		zap.String("provider", best.Provider),
		zap.String("quote_id", best.QuoteID),
		zap.String("source_chain", best.SourceChain),
		zap.String("dest_chain", best.DestinationChain),
		zap.String("priority", string(req.Priority)))

	return best, nil
}

func (a *Aggregator) cacheQuoteContext(ctx context.Context, quote *entities.BridgeQuote) error {
	now := a.now()
	if quote.ExpiresAt.IsZero() {
		// Provider omitted an expiry; stamp the fallback validity window so
		// the quote's own timestamp and the cache TTL agree
		quote.ExpiresAt = now.Add(a.cfg.QuoteValidity)
	}
	ttl := quote.ExpiresAt.Sub(now)
	if ttl <= 0 {
		ttl = time.Second
	}
	return a.store.Set(ctx, quoteContextKeyPrefix+quote.QuoteID, &quoteContext{
		Provider: quote.Provider,
		Quote:    quote,
	}, ttl)
}

// BuildTransaction resolves a still-valid quote into an encoded transaction.
// The build uses the cached quote context, never caller-supplied fields, so
// an expired or unknown quote identifier fails instead of producing a stale
// payload.
func (a *Aggregator) BuildTransaction(ctx context.Context, quote *entities.BridgeQuote) (*entities.TransactionDescriptor, error) {
	var cached quoteContext
	err := a.store.Get(ctx, quoteContextKeyPrefix+quote.QuoteID, &cached)
	if goerrors.Is(err, cache.ErrNotFound) {
		return nil, errors.QuoteExpiredError(quote.QuoteID)
	}
	if err != nil {
		return nil, fmt.Errorf("load quote context: %w", err)
	}
	// Cache TTL and the quote's own timestamp can disagree under clock skew;
	// the timestamp is authoritative
	if cached.Quote.Expired(a.now()) {
		return nil, errors.QuoteExpiredError(quote.QuoteID)
	}

	provider := a.providerByName(cached.Provider)
	if provider == nil {
		return nil, errors.InternalError(
			fmt.Sprintf("provider %s no longer registered", cached.Provider), nil)
	}

	tx, err := provider.BuildTransaction(ctx, cached.Quote)
	if err != nil {
		return nil, fmt.Errorf("build transaction via %s: %w", cached.Provider, err)
	}
	return tx, nil
}

// GetStatus normalizes one bridge leg's progress. The issuing provider is
// preferred when known from an earlier poll; otherwise every provider is
// probed. Provider errors never propagate: the caller is typically polling,
// so a transient failure yields a best-effort PENDING receipt carrying the
// error message instead.
func (a *Aggregator) GetStatus(ctx context.Context, txHash, sourceChain string) *entities.BridgeReceipt {
	providerKey := fmt.Sprintf("%s%s:%s", txProviderKeyPrefix, sourceChain, txHash)

	var knownProvider string
	if err := a.store.Get(ctx, providerKey, &knownProvider); err == nil {
		if p := a.providerByName(knownProvider); p != nil {
			if receipt, err := p.GetStatus(ctx, txHash, sourceChain); err == nil {
				receipt.Provider = p.Name()
				return receipt
			}
		}
	}

	var lastErr error
	for _, p := range a.providers {
		receipt, err := p.GetStatus(ctx, txHash, sourceChain)
		if err != nil {
			lastErr = err
			continue
		}
		receipt.Provider = p.Name()
		if err := a.store.Set(ctx, providerKey, p.Name(), txProviderTTL); err != nil {
			a.logger.Warn("Failed to memoize tx provider", zap.String("tx_hash", txHash), zap.Error(err))
		}
		return receipt
	}

	pending := &entities.BridgeReceipt{
		Status:       entities.ReceiptStatusPending,
		SourceTxHash: txHash,
		SourceChain:  sourceChain,
	}
	if lastErr != nil {
		pending.ErrorMessage = lastErr.Error()
	}
	return pending
}

func (a *Aggregator) providerByName(name string) Provider {
	for _, p := range a.providers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}
