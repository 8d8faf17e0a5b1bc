// Command todomcp runs the to-do list MCP server.
//
// It communicates over stdio (default) or Streamable HTTP using JSON-RPC
// 2.0 (MCP protocol), and persists tasks to Postgres, scoped per
// authenticated caller.
//
// Required configuration (file, or environment variable override):
//
//	database.dsn                             - Postgres connection string
//	auth.jwks_url OR auth.static_public_key  - token verification key source
//
// See -config and the TODOMCP_* environment variables in internal/config.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kestrel-tools/todomcp/internal/config"
	"github.com/kestrel-tools/todomcp/internal/identity"
	"github.com/kestrel-tools/todomcp/internal/mcp"
	"github.com/kestrel-tools/todomcp/internal/scheduler"
	"github.com/kestrel-tools/todomcp/internal/store/postgres"
	"github.com/kestrel-tools/todomcp/internal/tools/todo"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "info" {
		runInfo(os.Args[2:])
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "todomcp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	for i, a := range os.Args {
		if a == "-config" && i+1 < len(os.Args) {
			configPath = os.Args[i+1]
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := parseLogLevel(cfg.Log.Level)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	version := cfg.Server.Version
	if Version != "dev" {
		version = Version
	}

	logger.Info("starting todomcp", "version", version, "transport", cfg.Transport.Mode)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	keys, refreshJob, err := buildKeyProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("building key provider: %w", err)
	}
	gate := identity.NewGate(keys, cfg.Auth.Issuer, cfg.Auth.ClockSkew, logger)

	if refreshJob != nil {
		if err := refreshJob.Run(ctx); err != nil {
			return fmt.Errorf("initial jwks fetch: %w", err)
		}
		sched := scheduler.NewScheduler(logger)
		sched.AddJob(refreshJob, cfg.Auth.JWKSRefreshInterval)
		sched.Start(ctx)
		defer sched.Stop()
	}

	pool, err := postgres.Connect(ctx, cfg.Database.DSN, int32(cfg.Database.MaxOpenConns), int32(cfg.Database.MaxIdleConns))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	store := postgres.New(pool, logger)

	registry := mcp.NewRegistry()
	registry.Register(todo.NewAddTask(store))
	registry.Register(todo.NewListTasks(store))
	registry.Register(todo.NewCompleteTask(store))
	registry.Register(todo.NewUpdateTask(store))
	registry.Register(todo.NewDeleteTask(store))

	info := mcp.ServerInfo{Name: cfg.Server.Name, Version: version}

	if cfg.Transport.Mode == "http" {
		server := mcp.NewServer(registry, info, logger, "", cfg.Transport.CallDeadline)
		httpServer := mcp.NewHTTPServer(server, gate, cfg.Transport.CORSOrigins, logger)
		addr := cfg.Transport.Host + ":" + cfg.Transport.Port
		logger.Info("listening", "addr", addr)
		return runHTTP(ctx, addr, httpServer.Handler(), logger)
	}

	// stdio mode verifies a single process-level credential once at
	// startup (spec.md §4.1, §5): there is exactly one caller per process,
	// so per-call verification would be redundant I/O.
	token := os.Getenv("TODOMCP_TOKEN")
	subject, err := gate.Verify(ctx, token)
	if err != nil {
		return fmt.Errorf("verifying TODOMCP_TOKEN: %w", err)
	}
	server := mcp.NewServer(registry, info, logger, subject, cfg.Transport.CallDeadline)
	return server.Run(ctx)
}

func runHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func buildKeyProvider(cfg *config.Config, logger *slog.Logger) (identity.KeyProvider, *identity.JWKSProvider, error) {
	if cfg.Auth.JWKSURL != "" {
		provider := identity.NewJWKSProvider(cfg.Auth.JWKSURL, logger)
		return provider, provider, nil
	}
	provider, err := identity.NewStaticKeyProvider([]byte(cfg.Auth.StaticPublicKey))
	if err != nil {
		return nil, nil, err
	}
	return provider, nil, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
