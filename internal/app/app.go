// Package app wires every component together and dispatches on the
// configured run mode: "api" (Public API + Registry Auth over HTTP),
// "coordinator" (Match Coordinator + Orphan Reaper), or "migrate".
package app

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ch1nq/agentarena/internal/auth"
	"github.com/ch1nq/agentarena/internal/config"
	"github.com/ch1nq/agentarena/internal/httpserver"
	"github.com/ch1nq/agentarena/internal/platform"
	"github.com/ch1nq/agentarena/internal/telemetry"
	"github.com/ch1nq/agentarena/pkg/agent"
	"github.com/ch1nq/agentarena/pkg/coordinator"
	"github.com/ch1nq/agentarena/pkg/gamehost"
	"github.com/ch1nq/agentarena/pkg/machine"
	"github.com/ch1nq/agentarena/pkg/publicapi"
	"github.com/ch1nq/agentarena/pkg/reaper"
	"github.com/ch1nq/agentarena/pkg/registryauth"
	"github.com/ch1nq/agentarena/pkg/registryclient"
	"github.com/ch1nq/agentarena/pkg/systemtoken"
	"github.com/ch1nq/agentarena/pkg/token"
)

// Run is the main application entry point: it reads config, connects to
// infrastructure, and starts the mode the caller asked for.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting agentarena", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	if cfg.Mode == "migrate" {
		if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("migrations applied")
		return nil
	}

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	registryKey, err := parseRSAPrivateKey(cfg.RSAPrivateKeyPEM)
	if err != nil {
		return fmt.Errorf("parsing RSA_PRIVATE_KEY_PEM: %w", err)
	}

	registrySvc, err := registryauth.NewService(registryKey, cfg.RegistryURL, cfg.RegistryService)
	if err != nil {
		return fmt.Errorf("creating registry auth service: %w", err)
	}

	agents := agent.NewStore(db)
	apiTokens := token.NewStore(db, "api_tokens")
	registryTokens := token.NewStore(db, "registry_tokens")
	systemTokens := systemtoken.NewCache(registrySvc)
	registryClient := registryclient.NewClient(cfg.RegistryURL, cfg.CopyTool)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, agents, apiTokens, registryTokens, registryClient, registrySvc, systemTokens)
	case "coordinator":
		return runCoordinator(ctx, cfg, logger, agents, systemTokens)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	agents *agent.Store,
	apiTokens *token.Store,
	registryTokens *token.Store,
	registryClient *registryclient.Client,
	registrySvc *registryauth.Service,
	systemTokens *systemtoken.Cache,
) error {
	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	srv := httpserver.NewServer(cfg.CORSAllowedOrigins, logger, db, rdb, metricsReg)

	rateLimiter := auth.NewRateLimiter(rdb, 10, 15*time.Minute)
	registryAuthHandler := registryauth.NewHandler(registrySvc, registryTokens, systemTokens, rateLimiter)
	srv.Router.Get("/token", registryAuthHandler.ServeHTTP)

	publicHandler := publicapi.NewHandler(logger, agents, apiTokens, registryClient, systemTokens)
	srv.APIRouter.Mount("/", publicHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runCoordinator(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	agents *agent.Store,
	systemTokens *systemtoken.Cache,
) error {
	provider := machine.NewCloud(machine.CloudConfig{
		APIToken:     cfg.CloudAPIToken,
		Org:          cfg.CloudOrg,
		Internal:     cfg.CloudHost == "internal",
		RegistryHost: cfg.RegistryURL,
		CloudToken:   cfg.CloudAPIToken,
		Prefix:       cfg.ReaperPrefix,
		CopyTool:     cfg.CopyTool,
	})

	dial := func(ctx context.Context, addr string) (gamehost.Client, error) {
		return gamehost.Dial(ctx, addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	coord := coordinator.New(agents, provider, dial, systemTokens.Get, coordinator.Config{
		AgentsPerGame: cfg.AgentsPerGame,
		GameHostImage: cfg.GameHostImage,
		PollInterval:  time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		MatchConfig: gamehost.MatchConfig{
			TickRateMS:  cfg.TickRateMS,
			ArenaWidth:  cfg.ArenaWidth,
			ArenaHeight: cfg.ArenaHeight,
		},
		GameHostPort: fmt.Sprintf("%d", cfg.GHGRPCPort),
		AgentPort:    fmt.Sprintf("%d", cfg.AgentGRPCPort),
	}, logger)

	reap := reaper.New(provider, reaper.Config{
		Prefix: cfg.ReaperPrefix,
		MaxAge: time.Duration(cfg.ReaperMaxAgeMS) * time.Millisecond,
	}, logger)

	errCh := make(chan error, 2)
	go func() { errCh <- coord.Run(ctx, time.Duration(cfg.GameIntervalMS)*time.Millisecond) }()
	go func() { errCh <- reap.Run(ctx, time.Duration(cfg.ReaperIntervalMS)*time.Millisecond) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// parseRSAPrivateKey decodes a PEM-encoded RSA private key, accepting both
// PKCS#1 ("RSA PRIVATE KEY") and PKCS#8 ("PRIVATE KEY") encodings.
func parseRSAPrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	if pemStr == "" {
		return nil, errors.New("RSA_PRIVATE_KEY_PEM is not set")
	}
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("invalid PEM block")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}
