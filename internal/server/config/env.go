package config

import (
	"os"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment variable read by parseEnv.
const EnvPrefix = "TENANTKEEPER_"

// parseEnv overlays values from TENANTKEEPER_* variables. DEFAULT_TENANT_DB
// is also honoured without the prefix. Unparsable numbers and durations
// panic, like an invalid config file.
func parseEnv(config *Config) {
	strs := map[string]*string{
		"HTTP_ADDR":       &config.EndpointAddrHTTP,
		"GRPC_ADDR":       &config.EndpointAddrGRPC,
		"DATABASE_DSN":    &config.DatabaseDSN,
		"STORE_MODE":      &config.StoreMode,
		"MASTER_DATABASE": &config.MasterDatabase,
		"TENANT_PREFIX":   &config.TenantPrefix,
		"AUTH_STRATEGY":   &config.AuthStrategy,
		"AUTH_ISSUER":     &config.AuthIssuer,
		"JWKS_URL":        &config.JWKSURL,
		"TENANT_CLAIM":    &config.TenantClaim,
		"SECRET_KEY":      &config.SecretKey,
		"ADMIN_KEY":        &config.AdminKey,
		"LOG_BACKEND":     &config.LogBackend,
		"LOG_LEVEL":       &config.LogLevel,
		"LOG_FORMAT":      &config.LogFormat,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("DEFAULT_TENANT_DB"); ok {
		config.DefaultTenantDB = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "DEFAULT_TENANT_DB"); ok {
		config.DefaultTenantDB = v
	}

	durations := map[string]*time.Duration{
		"JWKS_FETCH_TIMEOUT":      &config.JWKSFetchTimeout,
		"JWKS_REFRESH_INTERVAL":   &config.JWKSRefreshInterval,
		"JWKS_MIN_REFRESH":        &config.JWKSMinRefresh,
		"TOKEN_LEEWAY":            &config.TokenLeeway,
		"TOKEN_VALIDITY_DURATION": &config.TokenValidityDuration,
	}
	for name, dst := range durations {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				panic(err)
			}
			*dst = d
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "ONBOARDING_RATE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			panic(err)
		}
		config.OnboardingRate = f
	}
	if v, ok := os.LookupEnv(EnvPrefix + "ONBOARDING_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		config.OnboardingBurst = n
	}
}
