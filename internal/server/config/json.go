package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tenantkeeper/internal/flagx"
	"github.com/dmitrijs2005/tenantkeeper/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations use timex.Duration so
// both "30s" and integer nanoseconds are accepted. Only fields present in
// the file override the current values.
type JsonConfig struct {
	EndpointAddrHTTP      *string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC      *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN           *string         `json:"database_dsn"`
	StoreMode             *string         `json:"store_mode"`
	MasterDatabase        *string         `json:"master_database"`
	TenantPrefix          *string         `json:"tenant_prefix"`
	AuthStrategy          *string         `json:"auth_strategy"`
	AuthIssuer            *string         `json:"auth_issuer"`
	JWKSURL               *string         `json:"jwks_url"`
	TenantClaim           *string         `json:"tenant_claim"`
	DefaultTenantDB       *string         `json:"default_tenant_db"`
	JWKSFetchTimeout      *timex.Duration `json:"jwks_fetch_timeout"`
	JWKSRefreshInterval   *timex.Duration `json:"jwks_refresh_interval"`
	JWKSMinRefresh        *timex.Duration `json:"jwks_min_refresh"`
	TokenLeeway           *timex.Duration `json:"token_leeway"`
	SecretKey             *string         `json:"secret_key"`
	TokenValidityDuration *timex.Duration `json:"token_validity_duration"`
	AdminKey              *string         `json:"admin_key"`
	HTTPReadTimeout       *timex.Duration `json:"http_read_timeout"`
	HTTPWriteTimeout      *timex.Duration `json:"http_write_timeout"`
	OnboardingRate        *float64        `json:"onboarding_rate"`
	OnboardingBurst       *int            `json:"onboarding_burst"`
	LogBackend            *string         `json:"log_backend"`
	LogLevel              *string         `json:"log_level"`
	LogFormat             *string         `json:"log_format"`
}

// parseJson loads configuration values from the JSON file named by the -c
// or -config flag. Without the flag nothing is loaded. An unreadable file
// or invalid JSON panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.ConfigFileFlag()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.StoreMode, c.StoreMode)
	setString(&config.MasterDatabase, c.MasterDatabase)
	setString(&config.TenantPrefix, c.TenantPrefix)
	setString(&config.AuthStrategy, c.AuthStrategy)
	setString(&config.AuthIssuer, c.AuthIssuer)
	setString(&config.JWKSURL, c.JWKSURL)
	setString(&config.TenantClaim, c.TenantClaim)
	setString(&config.DefaultTenantDB, c.DefaultTenantDB)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.AdminKey, c.AdminKey)
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)

	if c.JWKSFetchTimeout != nil {
		config.JWKSFetchTimeout = c.JWKSFetchTimeout.Duration
	}
	if c.JWKSRefreshInterval != nil {
		config.JWKSRefreshInterval = c.JWKSRefreshInterval.Duration
	}
	if c.JWKSMinRefresh != nil {
		config.JWKSMinRefresh = c.JWKSMinRefresh.Duration
	}
	if c.TokenLeeway != nil {
		config.TokenLeeway = c.TokenLeeway.Duration
	}
	if c.TokenValidityDuration != nil {
		config.TokenValidityDuration = c.TokenValidityDuration.Duration
	}
	if c.HTTPReadTimeout != nil {
		config.HTTPReadTimeout = c.HTTPReadTimeout.Duration
	}
	if c.HTTPWriteTimeout != nil {
		config.HTTPWriteTimeout = c.HTTPWriteTimeout.Duration
	}
	if c.OnboardingRate != nil {
		config.OnboardingRate = *c.OnboardingRate
	}
	if c.OnboardingBurst != nil {
		config.OnboardingBurst = *c.OnboardingBurst
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
