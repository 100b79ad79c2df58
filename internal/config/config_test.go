package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olehkaliuzhnyi/flow-wallet/pkg/models"
)

// chdir moves into dir for the duration of the test so Load("") does not pick
// up a config file from the package directory.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("FLOWWALLET_LOG_LEVEL", "debug")
	t.Setenv("FLOWWALLET_SEND_MAX_RETRIES", "7")
	t.Setenv("FLOWWALLET_SEND_RETRY_BASE", "250ms")
	t.Setenv("FLOWWALLET_PROVIDERS_TRON_TOKEN", "secret-key")
	t.Setenv("FLOWWALLET_PROVIDERS_BITCOIN_TESTNET_POLL_INTERVAL", "1m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Send.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Send.RetryBase)
	assert.Equal(t, "secret-key", cfg.Providers.Tron.Token)
	assert.Equal(t, time.Minute, cfg.Providers.BitcoinTestnet.PollInterval)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  env: production
providers:
  litecoin:
    url: http://localhost:8080/v1/ltc/main
    poll_interval: 3s
mpc:
  paillier_bits: 1024
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Log.Env)
	assert.Equal(t, "http://localhost:8080/v1/ltc/main", cfg.Providers.Litecoin.URL)
	assert.Equal(t, 3*time.Second, cfg.Providers.Litecoin.PollInterval)
	assert.Equal(t, 1024, cfg.MPC.PaillierBits)
	// Untouched keys keep their defaults.
	assert.Equal(t, Default().Providers.Tron, cfg.Providers.Tron)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("send:\n  max_retries: 5\n"), 0o600))
	t.Setenv("FLOWWALLET_SEND_MAX_RETRIES", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Send.MaxRetries)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"log env":       "FLOWWALLET_LOG_ENV",
		"retries":       "FLOWWALLET_SEND_MAX_RETRIES",
		"paillier bits": "FLOWWALLET_MPC_PAILLIER_BITS",
		"poll interval": "FLOWWALLET_PROVIDERS_LITECOIN_POLL_INTERVAL",
	}
	values := map[string]string{
		"log env":       "staging",
		"retries":       "0",
		"paillier bits": "512",
		"poll interval": "0s",
	}
	for name, key := range tests {
		t.Run(name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(key, values[name])
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestConfig_Provider(t *testing.T) {
	cfg := Default()
	p, ok := cfg.Provider(models.NetworkTronNile)
	require.True(t, ok)
	assert.Equal(t, "https://nile.trongrid.io", p.URL)

	_, ok = cfg.Provider(models.NetworkLitecoinTestnet)
	assert.False(t, ok)
}
