// Command gatewayd runs the gateway daemon: it reconciles host state
// against configuration delivered by a control-plane session, samples
// WireGuard counters on a watchdog interval, and optionally persists
// traffic rows to a SQLite database.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fractalnet.io/gatewayd/internal/config"
	"fractalnet.io/gatewayd/internal/ctlplane"
	"fractalnet.io/gatewayd/internal/gwstate"
	"fractalnet.io/gatewayd/internal/logging"
	"fractalnet.io/gatewayd/internal/osprim"
	"fractalnet.io/gatewayd/internal/persist"
	"fractalnet.io/gatewayd/internal/persist/sqlite"
	"fractalnet.io/gatewayd/internal/reconcile"
	"fractalnet.io/gatewayd/internal/watchdog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gatewayd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.SetDefault(logging.New(logging.Config{
		Level: parseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	}))
	log := logging.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	state := gwstate.New()
	os_ := osprim.NewLinux()
	reconciler := reconcile.New(os_, state)
	reconciler.CustomForwarding = cfg.CustomForwarding

	var writer persist.Writer
	if dbPath := os.Getenv("GATEWAY_DB_PATH"); dbPath != "" {
		store, err := sqlite.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening traffic database: %w", err)
		}
		defer store.Close()
		writer = store
		log.Info("traffic persistence enabled", "path", dbPath)
	}

	watchdogOpts := []watchdog.Option{watchdog.WithInterval(cfg.WatchdogInterval)}
	if writer != nil {
		watchdogOpts = append(watchdogOpts, watchdog.WithWriter(writer))
	}
	wd := watchdog.New(os_, state.Traffic, state.Events, watchdogOpts...)

	session := ctlplane.New(cfg.ManagerURL, cfg.Token, cfg.Identity, reconciler, state.Traffic, state.Events)

	if cfg.MetricsAddr != "" {
		startMetricsServer(ctx, &wg, cfg.MetricsAddr, log)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		wd.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := session.Run(ctx); err != nil {
			log.Error("control-plane session ended", "error", err)
		}
	}()

	log.Info("gatewayd started", "manager", cfg.ManagerURL, "identity", cfg.Identity)
	<-ctx.Done()
	log.Info("shutting down")

	wd.Stop()
	wg.Wait()

	return nil
}

// startMetricsServer runs a minimal Prometheus exposition server on
// cfg.MetricsAddr, grounded on the teacher's "/metrics" -> promhttp.Handler
// wiring in internal/api/server.go.
func startMetricsServer(ctx context.Context, wg *sync.WaitGroup, addr string, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics server listening", "addr", addr)
}

func parseLevel(name string) logging.Level {
	switch name {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
