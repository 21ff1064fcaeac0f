// Package server initializes and runs the tenantkeeper server: it wires the
// storage backend, the token validator and the auth gate, then runs the
// HTTP and gRPC endpoints until a shutdown signal.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/tenantkeeper/internal/docstore"
	"github.com/dmitrijs2005/tenantkeeper/internal/docstore/postgres"
	"github.com/dmitrijs2005/tenantkeeper/internal/logging"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/config"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/gate"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/records"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/services"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/tenants"

	gs "github.com/dmitrijs2005/tenantkeeper/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	registry *tenants.Registry
	http     *httpapi.Server
	grpc     *gs.GRPCServer
	signed   *auth.SignedTokenValidator
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewApp(c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Backend: c.LogBackend,
		Level:   c.LogLevel,
		Format:  c.LogFormat,
		Service: "tenantkeeper",
	})
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	app := &App{config: c, logger: logger}

	var (
		store docstore.Store
		rm    repomanager.RepositoryManager
	)
	switch c.StoreMode {
	case config.StoreModeMemory:
		logger.Warn(context.Background(), "using the in-memory store; nothing is persisted")
		store = docstore.NewMemoryStore()
	default:
		db, err := openDB(c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		app.db = db

		rm = repomanager.NewPostgresRepositoryManager()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := rm.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrations error: %w", err)
		}
		store = postgres.New(db)
	}

	m := metrics.New()

	var (
		validator auth.TokenValidator
		sessions  *services.SessionService
		owners    tenants.OwnerBinder
	)
	switch c.AuthStrategy {
	case config.AuthOpaque:
		validator = auth.NewOpaqueTokenValidator(rm.Users(app.db), c.DefaultTenantDB)
		sessions = services.NewSessionService(app.db, rm, []byte(c.SecretKey), c.TokenValidityDuration)
		owners = sessions
	default:
		signed := auth.NewSignedTokenValidator(auth.SignedConfig{
			Issuer:             c.AuthIssuer,
			JWKSURL:            c.JWKSURL,
			TenantClaim:        c.TenantClaim,
			DefaultTenantDB:    c.DefaultTenantDB,
			FetchTimeout:       c.JWKSFetchTimeout,
			RefreshInterval:    c.JWKSRefreshInterval,
			MinRefreshInterval: c.JWKSMinRefresh,
			Leeway:             c.TokenLeeway,
		}, nil)
		if err := signed.EnsureInitialized(); err != nil {
			logger.Error(context.Background(), "signed token validator is not usable, every request will be rejected", "error", err)
		}
		validator = signed
		app.signed = signed
	}

	g := gate.New(validator, logger, m)

	app.registry = tenants.NewRegistry(store, c.MasterDatabase, logger)
	provisioner := tenants.NewProvisioner(app.registry, store, tenants.ProvisionerConfig{
		TenantPrefix: c.TenantPrefix,
		Owners:       owners,
	}, logger, m)

	app.http = httpapi.New(httpapi.Options{
		Address:         c.EndpointAddrHTTP,
		ReadTimeout:     c.HTTPReadTimeout,
		WriteTimeout:    c.HTTPWriteTimeout,
		OnboardingRate:  c.OnboardingRate,
		OnboardingBurst: c.OnboardingBurst,
		AdminKey:        c.AdminKey,
	}, g, provisioner, records.NewService(store, logger), sessionManager(sessions), m, logger)

	app.grpc = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, g, m)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// serve runs one endpoint and cancels the whole app when it fails.
func (app *App) serve(ctx context.Context, cancelFunc context.CancelFunc, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		app.logger.Error(ctx, "server failed", "server", name, "error", err)
		cancelFunc()
	}
}

// Run prepares the registry and serves HTTP and gRPC until ctx is cancelled
// or a signal arrives.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	if err := app.registry.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("registry init error: %w", err)
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.serve(ctx, cancelFunc, "http", app.http.Run)
	}()
	go func() {
		defer wg.Done()
		app.serve(ctx, cancelFunc, "grpc", app.grpc.Run)
	}()

	wg.Wait()

	app.logger.Info(ctx, "App stopped")
	return nil
}

// sessionManager keeps a nil service from becoming a non-nil interface.
func sessionManager(s *services.SessionService) httpapi.SessionManager {
	if s == nil {
		return nil
	}
	return s
}

// Close stops the key set refresh and releases the database pool, if any.
func (app *App) Close() error {
	if app.signed != nil {
		app.signed.Close()
	}
	if app.db != nil {
		return app.db.Close()
	}
	return nil
}
