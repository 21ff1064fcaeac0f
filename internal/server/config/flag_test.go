package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	// Test cases
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"cmd",
			"-a", "127.0.0.1:8081", "-g", "127.0.0.1:9090", "-d", "db", "-m", "memory", "-n", "master",
			"-p", "x_", "-k", "opaque", "-i", "https://issuer", "-j", "https://issuer/jwks",
			"-s", "secret", "-t", "15", "-l", "debug", "-b", "zap",
		}, expected: &Config{
			EndpointAddrHTTP:      "127.0.0.1:8081",
			EndpointAddrGRPC:      "127.0.0.1:9090",
			DatabaseDSN:           "db",
			StoreMode:             "memory",
			MasterDatabase:        "master",
			TenantPrefix:          "x_",
			AuthStrategy:          "opaque",
			AuthIssuer:            "https://issuer",
			JWKSURL:               "https://issuer/jwks",
			SecretKey:             "secret",
			TokenValidityDuration: 15 * time.Minute,
			LogLevel:              "debug",
			LogBackend:            "zap",
		}},
		{name: "unknown flags are ignored", args: []string{"cmd", "-c", "cfg.json", "-zzz", "-a", ":1"},
			expected: &Config{EndpointAddrHTTP: ":1", TokenValidityDuration: 90 * time.Second}},
		{name: "bad int", args: []string{"cmd", "-t", "soon"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{TokenValidityDuration: 90 * time.Second}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
