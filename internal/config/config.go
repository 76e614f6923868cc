package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"tx-preflight/internal/entity"
)

// Config holds all configuration for the application.
type Config struct {
	App        AppConfig                `mapstructure:"app"`
	Server     ServerConfig             `mapstructure:"server"`
	Logger     LoggerConfig             `mapstructure:"logger"`
	Router     RouterConfig             `mapstructure:"router"`
	Simulation SimulationConfig         `mapstructure:"simulation"`
	Networks   map[string]NetworkConfig `mapstructure:"networks"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// RouterConfig holds settings for the endpoint router.
type RouterConfig struct {
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// SimulationConfig holds settings for the simulation service: the receipt
// validity window and the conservative fallbacks used when fee estimation fails.
// BitcoinChain selects which chain's address encoding bitcoin-kind networks use
// (mainnet, testnet3, regtest or simnet).
type SimulationConfig struct {
	ReceiptValidity      time.Duration `mapstructure:"receipt_validity"`
	CacheCleanupInterval time.Duration `mapstructure:"cache_cleanup_interval"`
	DefaultGasLimit      uint64        `mapstructure:"default_gas_limit"`
	FallbackGasPriceWei  string        `mapstructure:"fallback_gas_price_wei"`
	FallbackFeeRateSatVB string        `mapstructure:"fallback_fee_rate_sat_vb"`
	AssumedVBytes        int64         `mapstructure:"assumed_vbytes"`
	BitcoinChain         string        `mapstructure:"bitcoin_chain"`
}

// NetworkConfig describes one network: how its endpoints speak JSON-RPC and
// the ordered endpoint list.
type NetworkConfig struct {
	Kind      string           `mapstructure:"kind"` // "evm" or "bitcoin"
	Endpoints []EndpointConfig `mapstructure:"endpoints"`
}

// EndpointConfig describes one RPC endpoint. Credentials for bitcoin-style
// endpoints go in the URL userinfo.
type EndpointConfig struct {
	URL       string `mapstructure:"url"`
	Name      string `mapstructure:"name"`
	Protected bool   `mapstructure:"protected"`
	Priority  int    `mapstructure:"priority"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("app.name", "tx-preflight")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("router.attempt_timeout", "3s")
	v.SetDefault("simulation.receipt_validity", "5m")
	v.SetDefault("simulation.cache_cleanup_interval", "10m")
	v.SetDefault("simulation.default_gas_limit", 21000)
	v.SetDefault("simulation.fallback_gas_price_wei", "1000000000")
	v.SetDefault("simulation.fallback_fee_rate_sat_vb", "10")
	v.SetDefault("simulation.assumed_vbytes", 226)
	v.SetDefault("simulation.bitcoin_chain", "mainnet")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Printf("Warning: Config file not found in %s or '.', using defaults/env vars\n", configPath)
		}
	}

	v.SetEnvPrefix("TX_PREFLIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validateNetworks(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validateNetworks() error {
	for name, nw := range c.Networks {
		switch entity.NetworkKind(nw.Kind) {
		case entity.KindEVM, entity.KindBitcoin:
		default:
			return fmt.Errorf("network '%s' has unsupported kind '%s'", name, nw.Kind)
		}
		for _, ep := range nw.Endpoints {
			if err := entity.ValidateEndpointURL(ep.URL); err != nil {
				return fmt.Errorf("network '%s': %w", name, err)
			}
		}
	}
	return nil
}

// Endpoints builds the per-network registry: endpoints sorted by ascending
// priority, ties broken by registration order.
func (c *Config) Endpoints() map[entity.Network][]entity.Endpoint {
	registry := make(map[entity.Network][]entity.Endpoint, len(c.Networks))
	for name, nw := range c.Networks {
		network := entity.Network(name)
		endpoints := make([]entity.Endpoint, 0, len(nw.Endpoints))
		for _, ep := range nw.Endpoints {
			endpoints = append(endpoints, entity.Endpoint{
				URL:       ep.URL,
				Name:      ep.Name,
				Network:   network,
				Protected: ep.Protected,
				Priority:  ep.Priority,
			})
		}
		sort.SliceStable(endpoints, func(i, j int) bool {
			return endpoints[i].Priority < endpoints[j].Priority
		})
		registry[network] = endpoints
	}
	return registry
}

// Kinds builds the network -> kind mapping consumed by the RPC client and the
// simulation strategies.
func (c *Config) Kinds() map[entity.Network]entity.NetworkKind {
	kinds := make(map[entity.Network]entity.NetworkKind, len(c.Networks))
	for name, nw := range c.Networks {
		kinds[entity.Network(name)] = entity.NetworkKind(nw.Kind)
	}
	return kinds
}

func (c RouterConfig) GetAttemptTimeout() time.Duration {
	return c.AttemptTimeout
}

func (c SimulationConfig) GetReceiptValidity() time.Duration {
	return c.ReceiptValidity
}

func (c SimulationConfig) GetCacheCleanupInterval() time.Duration {
	return c.CacheCleanupInterval
}
