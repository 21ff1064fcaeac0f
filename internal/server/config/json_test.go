package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr_http":      "www.example:8000",
		"endpoint_addr_grpc":      "www.example:9000",
		"database_dsn":            "postgres://db",
		"store_mode":              "memory",
		"master_database":         "master",
		"tenant_prefix":           "t_",
		"auth_strategy":           "opaque",
		"auth_issuer":             "https://issuer",
		"jwks_url":                "https://issuer/keys",
		"tenant_claim":            "tenant",
		"default_tenant_db":       "tn_default",
		"jwks_fetch_timeout":      "2s",
		"jwks_refresh_interval":   "30m",
		"jwks_min_refresh":        "10s",
		"token_leeway":            1000000000,
		"secret_key":              "my_secret_key",
		"token_validity_duration": "90m",
		"http_read_timeout":       "3s",
		"http_write_timeout":      "4s",
		"onboarding_rate":         0.5,
		"onboarding_burst":        2,
		"log_backend":             "zap",
		"log_level":               "debug",
		"log_format":              "console",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, Config{
			EndpointAddrHTTP:      "www.example:8000",
			EndpointAddrGRPC:      "www.example:9000",
			DatabaseDSN:           "postgres://db",
			StoreMode:             "memory",
			MasterDatabase:        "master",
			TenantPrefix:          "t_",
			AuthStrategy:          "opaque",
			AuthIssuer:            "https://issuer",
			JWKSURL:               "https://issuer/keys",
			TenantClaim:           "tenant",
			DefaultTenantDB:       "tn_default",
			JWKSFetchTimeout:      2 * time.Second,
			JWKSRefreshInterval:   30 * time.Minute,
			JWKSMinRefresh:        10 * time.Second,
			TokenLeeway:           time.Second,
			SecretKey:             "my_secret_key",
			TokenValidityDuration: 90 * time.Minute,
			HTTPReadTimeout:       3 * time.Second,
			HTTPWriteTimeout:      4 * time.Second,
			OnboardingRate:        0.5,
			OnboardingBurst:       2,
			LogBackend:            "zap",
			LogLevel:              "debug",
			LogFormat:             "console",
		}, *cfg)
	})

	t.Run("partial file keeps other values", func(t *testing.T) {
		partial := writeTempJSON(t, dir, "partial.json", map[string]any{"tenant_prefix": "p_"})
		os.Args = []string{"testbin", "-c", partial}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "p_", cfg.TenantPrefix)
		assert.Equal(t, ":8080", cfg.EndpointAddrHTTP)
		assert.Equal(t, 24*time.Hour, cfg.TokenValidityDuration)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{EndpointAddrGRPC: "defaults:1234", SecretKey: "key", TokenValidityDuration: 2 * time.Minute}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.EndpointAddrGRPC)
		assert.Equal(t, "key", cfg.SecretKey)
		assert.Equal(t, 2*time.Minute, cfg.TokenValidityDuration)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})

	t.Run("missing file → panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", filepath.Join(dir, "nope.json")}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}

func Test_parseEnv(t *testing.T) {
	t.Setenv("TENANTKEEPER_DATABASE_DSN", "postgres://env")
	t.Setenv("TENANTKEEPER_AUTH_STRATEGY", "opaque")
	t.Setenv("DEFAULT_TENANT_DB", "tn_shared")
	t.Setenv("TENANTKEEPER_TOKEN_LEEWAY", "45s")
	t.Setenv("TENANTKEEPER_ONBOARDING_BURST", "3")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	assert.Equal(t, "postgres://env", cfg.DatabaseDSN)
	assert.Equal(t, AuthOpaque, cfg.AuthStrategy)
	assert.Equal(t, "tn_shared", cfg.DefaultTenantDB)
	assert.Equal(t, 45*time.Second, cfg.TokenLeeway)
	assert.Equal(t, 3, cfg.OnboardingBurst)
	assert.Equal(t, ":8080", cfg.EndpointAddrHTTP)

	t.Setenv("TENANTKEEPER_DEFAULT_TENANT_DB", "tn_prefixed")
	parseEnv(cfg)
	assert.Equal(t, "tn_prefixed", cfg.DefaultTenantDB)

	t.Setenv("TENANTKEEPER_ONBOARDING_RATE", "fast")
	require.Panics(t, func() { parseEnv(cfg) })
}
