package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	genesis "nexum/config"
	"nexum/core"
	"nexum/core/events"
	"nexum/observability"
	"nexum/observability/logging"
	telemetry "nexum/observability/otel"
	"nexum/services/lending/archive"
	"nexum/services/lending/engine"
	lendingserver "nexum/services/lending/server"
	"nexum/services/lendingd/config"
	"nexum/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.yaml", "path to lendingd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("NEXUM_ENV"))
	logger, logCloser := logging.SetupWithOptions("lendingd", env, cfg.Logging)
	defer logCloser.Close()

	telemetryCfg := telemetry.ConfigFromEnv("lendingd")
	if telemetryCfg.Enabled() {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryCfg)
		if err != nil {
			log.Fatalf("init telemetry: %v", err)
		}
		defer func() {
			_ = shutdownTelemetry(context.Background())
		}()
	}

	doc, err := genesis.Load(cfg.GenesisPath)
	if err != nil {
		log.Fatalf("load genesis: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		log.Fatalf("create data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.StorePath())
	if err != nil {
		log.Fatalf("open state store: %v", err)
	}
	defer db.Close()

	sinks := events.Fanout{observability.NewMetricsEmitter()}
	var store *archive.Store
	if cfg.Archive.Enabled {
		store, err = archive.Open(cfg.Archive.Store(), logger)
		if err != nil {
			log.Fatalf("open event archive: %v", err)
		}
		defer store.Close()
		sinks = append(sinks, store)
	}

	protocol, err := core.NewProtocol(db, core.WithEmitter(sinks), core.WithLogger(logger))
	if err != nil {
		log.Fatalf("init protocol: %v", err)
	}
	if err := protocol.Bootstrap(context.Background(), doc); err != nil {
		if !errors.Is(err, core.ErrGenesisApplied) {
			log.Fatalf("bootstrap protocol: %v", err)
		}
		logger.Info("genesis already applied", slog.String("path", cfg.GenesisPath))
	}

	replay, err := lendingserver.OpenReplayGuard(cfg.Auth.ReplayPath, cfg.Auth.CosignTTL)
	if err != nil {
		log.Fatalf("open replay guard: %v", err)
	}
	defer replay.Close()

	authenticator := lendingserver.NewAuthenticator(lendingserver.AuthConfig{
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  cfg.Auth.ClockSkew,
		CosignTTL:  cfg.Auth.CosignTTL,
	}, replay, logger)

	opts := []lendingserver.Option{
		lendingserver.WithLogger(logger),
		lendingserver.WithRateLimiter(lendingserver.NewRateLimiter(lendingserver.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
			TrustedProxies:    cfg.RateLimit.TrustedProxies,
		})),
		lendingserver.WithMaxBodyBytes(cfg.MaxBodyBytes),
	}
	if store != nil {
		opts = append(opts, lendingserver.WithEventArchive(store), lendingserver.WithIdempotency(store))
	}
	service := lendingserver.New(engine.NewProtocolAdapter(protocol), authenticator, opts...)

	tlsCfg, err := lendingserver.ServerTLSConfig(lendingserver.TLSConfig{
		CertFile:     cfg.TLS.CertPath,
		KeyFile:      cfg.TLS.KeyPath,
		ClientCAFile: cfg.TLS.ClientCAPath,
	})
	if err != nil {
		log.Fatalf("configure tls: %v", err)
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.ListenAddress, err)
	}
	if tlsCfg == nil {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(env, "dev") && !loopback {
			log.Fatalf("plaintext lendingd mode is restricted to loopback listeners or dev environment")
		}
	}

	httpServer := &http.Server{
		Handler:           service.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", slog.String("addr", cfg.ListenAddress), slog.Bool("tls", tlsCfg != nil))
		if tlsCfg != nil {
			serverErr <- httpServer.ServeTLS(listener, "", "")
			return
		}
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve http", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forcing server stop", slog.Any("error", err))
		_ = httpServer.Close()
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
}
