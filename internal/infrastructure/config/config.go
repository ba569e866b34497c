package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	Server        ServerConfig        `mapstructure:"server"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Consolidation ConsolidationConfig `mapstructure:"consolidation"`
	Aggregator    AggregatorConfig    `mapstructure:"aggregator"`
	Providers     ProvidersConfig     `mapstructure:"providers"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ConsolidationConfig tunes the planning/execution engine
type ConsolidationConfig struct {
	PlanTTL                int     `mapstructure:"plan_ttl"`                // seconds a quoted plan stays valid
	ExecutionTTL           int     `mapstructure:"execution_ttl"`           // extended plan/job lifetime once executing, seconds
	HistoryTTL             int     `mapstructure:"history_ttl"`             // execution status retention, seconds
	MinChainValueUSD       float64 `mapstructure:"min_chain_value_usd"`     // chains below this are skipped with a warning
	MaxSourceChains        int     `mapstructure:"max_source_chains"`       // validation ceiling on request size
	SwapFeeRatio           float64 `mapstructure:"swap_fee_ratio"`          // approximate DEX fee as a fraction of value
	SwapGasUSD             float64 `mapstructure:"swap_gas_usd"`            // flat per-chain swap gas estimate
	SwapTimeSeconds        int     `mapstructure:"swap_time_seconds"`       // per-leg estimate when no bridge is involved
	CompletionBufferSec    int     `mapstructure:"completion_buffer_sec"`   // fixed buffer added to the slowest leg
	ProfitabilityThreshold float64 `mapstructure:"profitability_threshold"` // output/input ratio below which a warning is raised
	HistoryMaxEntries      int     `mapstructure:"history_max_entries"`     // per-user history index cap
	PollSchedule           string  `mapstructure:"poll_schedule"`           // cron spec for the status poller
}

// AggregatorConfig tunes the bridge quote fan-out
type AggregatorConfig struct {
	QuoteTimeout      int     `mapstructure:"quote_timeout"`       // per-provider quote timeout, seconds
	RouteSupportTTL   int     `mapstructure:"route_support_ttl"`   // cache TTL for supported routes, seconds
	RouteFailureTTL   int     `mapstructure:"route_failure_ttl"`   // cache TTL for unsupported routes, seconds
	DefaultSlippage   float64 `mapstructure:"default_slippage"`    // fraction, e.g. 0.005
	QuoteValiditySecs int     `mapstructure:"quote_validity_secs"` // fallback quote TTL when a provider omits expiry
}

// ProvidersConfig holds per-provider adapter settings
type ProvidersConfig struct {
	Hopx      ProviderConfig `mapstructure:"hopx"`
	Relayfast ProviderConfig `mapstructure:"relayfast"`
}

type ProviderConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Timeout     int     `mapstructure:"timeout"` // seconds
	MaxRequests float64 `mapstructure:"max_requests_per_second"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("consolidation.plan_ttl", 300)        // 5 minutes
	viper.SetDefault("consolidation.execution_ttl", 3600)  // 1 hour
	viper.SetDefault("consolidation.history_ttl", 604800)  // 7 days
	viper.SetDefault("consolidation.min_chain_value_usd", 1.0)
	viper.SetDefault("consolidation.max_source_chains", 10)
	viper.SetDefault("consolidation.swap_fee_ratio", 0.003)
	viper.SetDefault("consolidation.swap_gas_usd", 0.50)
	viper.SetDefault("consolidation.swap_time_seconds", 60)
	viper.SetDefault("consolidation.completion_buffer_sec", 300)
	viper.SetDefault("consolidation.profitability_threshold", 0.90)
	viper.SetDefault("consolidation.history_max_entries", 100)
	viper.SetDefault("consolidation.poll_schedule", "@every 30s")

	viper.SetDefault("aggregator.quote_timeout", 10)
	viper.SetDefault("aggregator.route_support_ttl", 300) // 5 minutes
	viper.SetDefault("aggregator.route_failure_ttl", 30)  // transient outages recover quickly
	viper.SetDefault("aggregator.default_slippage", 0.005)
	viper.SetDefault("aggregator.quote_validity_secs", 120)

	viper.SetDefault("providers.hopx.enabled", true)
	viper.SetDefault("providers.hopx.base_url", "https://api.hopx.exchange")
	viper.SetDefault("providers.hopx.timeout", 15)
	viper.SetDefault("providers.hopx.max_requests_per_second", 10)

	viper.SetDefault("providers.relayfast.enabled", true)
	viper.SetDefault("providers.relayfast.base_url", "https://api.relayfast.io")
	viper.SetDefault("providers.relayfast.timeout", 15)
	viper.SetDefault("providers.relayfast.max_requests_per_second", 10)

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 1.0)
	viper.SetDefault("tracing.insecure", true)
}

func overrideFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("server.port", p)
		}
	}

	if redisURL := os.Getenv("REDIS_HOST"); redisURL != "" {
		viper.Set("redis.host", redisURL)
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		viper.Set("redis.password", redisPassword)
	}

	if hopxKey := os.Getenv("HOPX_API_KEY"); hopxKey != "" {
		viper.Set("providers.hopx.api_key", hopxKey)
	}
	if hopxURL := os.Getenv("HOPX_BASE_URL"); hopxURL != "" {
		viper.Set("providers.hopx.base_url", hopxURL)
	}
	if relayfastKey := os.Getenv("RELAYFAST_API_KEY"); relayfastKey != "" {
		viper.Set("providers.relayfast.api_key", relayfastKey)
	}
	if relayfastURL := os.Getenv("RELAYFAST_BASE_URL"); relayfastURL != "" {
		viper.Set("providers.relayfast.base_url", relayfastURL)
	}

	if collectorURL := os.Getenv("OTEL_COLLECTOR_URL"); collectorURL != "" {
		viper.Set("tracing.collector_url", collectorURL)
	}
}

func validate(config *Config) error {
	if config.Consolidation.PlanTTL <= 0 {
		return fmt.Errorf("consolidation plan TTL must be positive")
	}
	if config.Consolidation.MaxSourceChains <= 0 {
		return fmt.Errorf("consolidation max source chains must be positive")
	}
	if config.Consolidation.SwapFeeRatio < 0 || config.Consolidation.SwapFeeRatio >= 1 {
		return fmt.Errorf("consolidation swap fee ratio must be in [0, 1)")
	}
	if !config.Providers.Hopx.Enabled && !config.Providers.Relayfast.Enabled {
		return fmt.Errorf("at least one bridge provider must be enabled")
	}
	return nil
}
