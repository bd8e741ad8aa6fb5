// cmd/api/main.go
//
// TopSteel ERP core – HTTP entry point.
//
// Startup life-cycle
// ------------------
//
//  1. Load env vars (host-wide file → .env fallback).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Load and validate config (YAML → TOPSTEEL_* env → Vault references).
//
//  4. Open the control-plane DB and log active-societe count.
//
//  5. Build the lazy per-tenant connection pool.
//
//  6. Wire stores, the database admin, the seeder, and the provisioning
//     orchestrator, then the admin router on top of them.
//
//  7. Expose Prometheus /metrics next to the API.
//
//  8. Serve until SIGINT/SIGTERM, then drain: stop accepting requests,
//     close every pooled tenant handle, close the control-plane DB.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/topsteel/erp-core/internal/config"
	"github.com/topsteel/erp-core/internal/database"
	"github.com/topsteel/erp-core/internal/logger"
	"github.com/topsteel/erp-core/internal/middleware"
	"github.com/topsteel/erp-core/internal/server"
	"github.com/topsteel/erp-core/internal/tenant"
	"github.com/topsteel/erp-core/internal/tenant/guard"
	"github.com/topsteel/erp-core/internal/tenant/migrate"
	"github.com/topsteel/erp-core/internal/tenant/pool"
	"github.com/topsteel/erp-core/internal/tenant/provision"
	"github.com/topsteel/erp-core/internal/tenant/seed"
	"github.com/topsteel/erp-core/internal/web"
)

const (
	serverEnvPath   = "/usr/local/etc/topsteel/global.env"
	shutdownTimeout = 20 * time.Second
)

// loadEnv prefers the host-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	rootDir, _ := os.Getwd()
	sugar, err := logger.New(rootDir, runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer func() { _ = sugar.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//
	// ── 1.  Config ──────────────────────────────────────────────────────
	//
	cfg, err := config.Load(ctx)
	if err != nil {
		sugar.Fatalw("load config", "err", err)
	}
	sugar.Infow("config loaded", "env", cfg.Environment)

	//
	// ── 2.  Control-plane DB connect ────────────────────────────────────
	//
	controlDB, err := database.OpenWithOptions(ctx,
		database.BuildDSN(cfg.Database, cfg.Database.ControlDB),
		database.Options{
			MaxOpenConns: cfg.Pool.MaxOpenConns,
			MaxIdleConns: cfg.Pool.MaxIdleConns,
		})
	if err != nil {
		sugar.Fatalw("connect control-plane DB", "err", err)
	}
	defer controlDB.Close()
	sugar.Info("control-plane DB online")

	// Log active-societe count as an early sanity check.
	var active int
	_ = controlDB.GetContext(ctx, &active, `
	    SELECT COUNT(*) FROM societes
	    WHERE status = 'active' AND deleted_at IS NULL`)
	sugar.Infof("%d active societe(s) found", active)

	//
	// ── 3.  Tenant pool (lazy per-societe opener) ───────────────────────
	//
	p := pool.New(pool.NewOpener(cfg.Database, cfg.Pool), cfg.Pool.IdleTTL)

	//
	// ── 4.  Lifecycle wiring ────────────────────────────────────────────
	//
	tenants := tenant.NewStore(controlDB)
	memberships := guard.NewMembershipStore(controlDB)
	admin := database.NewAdmin(cfg.Database)
	seeder := seed.New(controlDB, cfg.Production())
	orch := provision.New(tenants, admin, p, migrate.Run, seeder)
	resolver := guard.NewResolver(tenants, memberships, p)

	//
	// ── 5.  HTTP surface ────────────────────────────────────────────────
	//
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", web.NewServer(p, orch, resolver).Router())

	var handler http.Handler = mux
	if cfg.Production() {
		handler = middleware.ForceHTTPS(handler)
	}

	srv := server.New(cfg.HTTP.ListenAddr, handler)

	errCh := make(chan error, 1)
	go func() {
		sugar.Infof("listening on %s", cfg.HTTP.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	//
	// ── 6.  Drain on signal ─────────────────────────────────────────────
	//
	select {
	case <-ctx.Done():
		sugar.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("http server", "err", err)
		}
		return
	}

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		sugar.Warnw("http shutdown", "err", err)
	}

	// Every pooled tenant handle is closed before the process exits; the
	// control-plane DB follows via the deferred Close above.
	p.CloseAll()
	sugar.Info("bye")
}
