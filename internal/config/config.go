// Package config loads walletctl settings from defaults, an optional YAML
// file and FLOWWALLET_* environment variables, in increasing precedence.
// Key material is never read from configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/mpc"
	"github.com/olehkaliuzhnyi/flow-wallet/pkg/models"
)

const envPrefix = "FLOWWALLET"

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Send      SendConfig      `mapstructure:"send"`
	MPC       MPCConfig       `mapstructure:"mpc"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type LogConfig struct {
	Env   string `mapstructure:"env"` // production | development
	Level string `mapstructure:"level"`
}

// ProviderConfig points one network at its data provider.
type ProviderConfig struct {
	URL          string        `mapstructure:"url"`
	Token        string        `mapstructure:"token"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type ProvidersConfig struct {
	Bitcoin        ProviderConfig `mapstructure:"bitcoin"`
	BitcoinTestnet ProviderConfig `mapstructure:"bitcoin_testnet"`
	Litecoin       ProviderConfig `mapstructure:"litecoin"`
	Tron           ProviderConfig `mapstructure:"tron"`
	TronNile       ProviderConfig `mapstructure:"tron_nile"`
}

type SendConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	RetryBase  time.Duration `mapstructure:"retry_base"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type MPCConfig struct {
	PaillierBits int    `mapstructure:"paillier_bits"`
	ListenAddr   string `mapstructure:"listen_addr"` // cosigner websocket listener
	PeerURL      string `mapstructure:"peer_url"`    // initiator dials this
}

type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Default returns a Config populated with default values.
func Default() Config {
	return Config{
		Log: LogConfig{Env: "development", Level: "info"},
		Providers: ProvidersConfig{
			Bitcoin:        ProviderConfig{URL: "https://api.blockcypher.com/v1/btc/main", PollInterval: 30 * time.Second},
			BitcoinTestnet: ProviderConfig{URL: "https://api.blockcypher.com/v1/btc/test3", PollInterval: 30 * time.Second},
			Litecoin:       ProviderConfig{URL: "https://api.blockcypher.com/v1/ltc/main", PollInterval: 15 * time.Second},
			Tron:           ProviderConfig{URL: "https://api.trongrid.io", PollInterval: 5 * time.Second},
			TronNile:       ProviderConfig{URL: "https://nile.trongrid.io", PollInterval: 5 * time.Second},
		},
		Send: SendConfig{
			MaxRetries: 3,
			RetryBase:  time.Second,
			Timeout:    2 * time.Minute,
		},
		MPC: MPCConfig{
			PaillierBits: mpc.DefaultPaillierBits,
			ListenAddr:   "127.0.0.1:7040",
			PeerURL:      "ws://127.0.0.1:7040/mpc",
		},
		Metrics: MetricsConfig{ListenAddr: "127.0.0.1:9102"},
	}
}

// Load reads configuration. An empty path looks for flowwallet.yaml in the
// working directory and ./config and tolerates its absence; an explicit path
// must exist.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("flowwallet")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log.env", d.Log.Env)
	v.SetDefault("log.level", d.Log.Level)

	for name, p := range map[string]ProviderConfig{
		"bitcoin":         d.Providers.Bitcoin,
		"bitcoin_testnet": d.Providers.BitcoinTestnet,
		"litecoin":        d.Providers.Litecoin,
		"tron":            d.Providers.Tron,
		"tron_nile":       d.Providers.TronNile,
	} {
		v.SetDefault("providers."+name+".url", p.URL)
		v.SetDefault("providers."+name+".token", p.Token)
		v.SetDefault("providers."+name+".poll_interval", p.PollInterval)
	}

	v.SetDefault("send.max_retries", d.Send.MaxRetries)
	v.SetDefault("send.retry_base", d.Send.RetryBase)
	v.SetDefault("send.timeout", d.Send.Timeout)

	v.SetDefault("mpc.paillier_bits", d.MPC.PaillierBits)
	v.SetDefault("mpc.listen_addr", d.MPC.ListenAddr)
	v.SetDefault("mpc.peer_url", d.MPC.PeerURL)

	v.SetDefault("metrics.listen_addr", d.Metrics.ListenAddr)
}

// Validate rejects settings the rest of the program cannot run with.
func (c Config) Validate() error {
	if c.Log.Env != "production" && c.Log.Env != "development" {
		return fmt.Errorf("config: log.env must be production or development, got %q", c.Log.Env)
	}
	if c.Send.MaxRetries < 1 {
		return fmt.Errorf("config: send.max_retries must be at least 1, got %d", c.Send.MaxRetries)
	}
	if c.Send.Timeout <= 0 {
		return fmt.Errorf("config: send.timeout must be positive")
	}
	if c.MPC.PaillierBits < mpc.MinPaillierBits {
		return fmt.Errorf("config: mpc.paillier_bits must be at least %d, got %d", mpc.MinPaillierBits, c.MPC.PaillierBits)
	}
	for _, n := range []models.Network{
		models.NetworkBitcoin, models.NetworkBitcoinTestnet, models.NetworkLitecoin,
		models.NetworkTron, models.NetworkTronNile,
	} {
		p, _ := c.Provider(n)
		if p.URL == "" {
			return fmt.Errorf("config: providers.%s.url is empty", strings.ReplaceAll(string(n), "-", "_"))
		}
		if p.PollInterval <= 0 {
			return fmt.Errorf("config: providers.%s.poll_interval must be positive", strings.ReplaceAll(string(n), "-", "_"))
		}
	}
	return nil
}

// Provider returns the provider settings of network.
func (c Config) Provider(network models.Network) (ProviderConfig, bool) {
	switch network {
	case models.NetworkBitcoin:
		return c.Providers.Bitcoin, true
	case models.NetworkBitcoinTestnet:
		return c.Providers.BitcoinTestnet, true
	case models.NetworkLitecoin:
		return c.Providers.Litecoin, true
	case models.NetworkTron:
		return c.Providers.Tron, true
	case models.NetworkTronNile:
		return c.Providers.TronNile, true
	}
	return ProviderConfig{}, false
}
