package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/tenantkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-m string   store mode: postgres or memory
//	-n string   master database name
//	-p string   tenant database prefix
//	-k string   auth strategy: signed or opaque
//	-i string   token issuer (signed strategy)
//	-j string   JWKS URL (signed strategy)
//	-s string   session token secret key (opaque strategy)
//	-t int      session token validity, minutes
//	-l string   log level
//	-b string   log backend: slog or zap
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, so the -c/-config file flag does not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-d", "-m", "-n", "-p", "-k", "-i", "-j", "-s", "-t", "-l", "-b"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.StoreMode, "m", config.StoreMode, "store mode (postgres|memory)")
	fs.StringVar(&config.MasterDatabase, "n", config.MasterDatabase, "master database name")
	fs.StringVar(&config.TenantPrefix, "p", config.TenantPrefix, "tenant database prefix")
	fs.StringVar(&config.AuthStrategy, "k", config.AuthStrategy, "auth strategy (signed|opaque)")
	fs.StringVar(&config.AuthIssuer, "i", config.AuthIssuer, "token issuer")
	fs.StringVar(&config.JWKSURL, "j", config.JWKSURL, "JWKS URL")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidity := fs.Int("t", int(config.TokenValidityDuration.Minutes()), "token_validity_duration (in minutes)")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogBackend, "b", config.LogBackend, "log backend (slog|zap)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Minute
		}
	})
}
