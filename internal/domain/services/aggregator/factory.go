package aggregator

import (
	"time"

	"go.uber.org/zap"

	"github.com/dust-service/dust_service/internal/adapters/providers/hopx"
	"github.com/dust-service/dust_service/internal/adapters/providers/relayfast"
	"github.com/dust-service/dust_service/internal/infrastructure/cache"
	"github.com/dust-service/dust_service/internal/infrastructure/config"
)

// NewDefault builds an aggregator over the standard provider set declared in
// configuration. Tests construct New directly with substitute providers.
func NewDefault(cfg *config.Config, store cache.Store, logger *zap.Logger) *Aggregator {
	var providers []Provider

	if cfg.Providers.Hopx.Enabled {
		providers = append(providers, hopx.NewClient(hopx.Config{
			BaseURL:           cfg.Providers.Hopx.BaseURL,
			APIKey:            cfg.Providers.Hopx.APIKey,
			Timeout:           time.Duration(cfg.Providers.Hopx.Timeout) * time.Second,
			RequestsPerSecond: cfg.Providers.Hopx.MaxRequests,
		}, logger))
	}

	if cfg.Providers.Relayfast.Enabled {
		providers = append(providers, relayfast.NewClient(relayfast.Config{
			BaseURL:           cfg.Providers.Relayfast.BaseURL,
			APIKey:            cfg.Providers.Relayfast.APIKey,
			Timeout:           time.Duration(cfg.Providers.Relayfast.Timeout) * time.Second,
			RequestsPerSecond: cfg.Providers.Relayfast.MaxRequests,
		}, logger))
	}

	return New(providers, store, Config{
		QuoteTimeout:    time.Duration(cfg.Aggregator.QuoteTimeout) * time.Second,
		RouteSupportTTL: time.Duration(cfg.Aggregator.RouteSupportTTL) * time.Second,
		RouteFailureTTL: time.Duration(cfg.Aggregator.RouteFailureTTL) * time.Second,
		QuoteValidity:   time.Duration(cfg.Aggregator.QuoteValiditySecs) * time.Second,
	}, logger)
}
