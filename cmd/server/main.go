// Command gk-server starts the garage-keeper gRPC API, the HTTP sweep trigger
// and the in-process sweep scheduler.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/garage-keeper/internal/config"
	"github.com/and161185/garage-keeper/internal/limiter"
	"github.com/and161185/garage-keeper/internal/metrics"
	"github.com/and161185/garage-keeper/internal/migrate"
	"github.com/and161185/garage-keeper/internal/model"
	"github.com/and161185/garage-keeper/internal/repository/postgres"
	"github.com/and161185/garage-keeper/internal/scheduler"
	grpcserver "github.com/and161185/garage-keeper/internal/server/grpc"
	httpserver "github.com/and161185/garage-keeper/internal/server/http"
	"github.com/and161185/garage-keeper/internal/service"
	"github.com/and161185/garage-keeper/internal/vehicledata"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations and serves until SIGINT/SIGTERM.
func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(os.Args[1:], ".env")
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("grpc", cfg.GRPCAddr),
		zap.String("http", cfg.HTTPAddr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applied, err := migrate.Up(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}
	logger.Info("migrations applied", zap.Int64s("versions", applied))

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	eventRepo := postgres.NewEventRepo(db)
	vehicleRepo := postgres.NewVehicleRepo(db)
	notificationRepo := postgres.NewNotificationRepo(db)

	obs, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}

	// Services
	defaults := cfg.Reminders()
	sweeper := service.NewSweeper(eventRepo, notificationRepo, logger.Named("sweep"),
		service.WithDefaultReminders(defaults),
		service.WithSweepObserver(obs),
	)
	syncer := service.NewSynchronizer(eventRepo, vehicleRepo, logger.Named("derived"),
		service.WithLocation(cfg.Location()),
		service.WithDerivedReminders(&model.ReminderConfig{Overrides: defaults}),
		service.WithSyncObserver(obs),
	)
	var lookup service.VehicleLookup
	if cfg.VehicleDataEnabled() {
		client, err := vehicledata.New(cfg.VehicleData, logger.Named("vehicledata"))
		if err != nil {
			logger.Fatal("vehicle data client", zap.Error(err))
		}
		lookup = client
	}
	vehicleSvc := service.NewVehicleService(vehicleRepo, syncer, lookup, logger.Named("vehicles"))
	eventSvc := service.NewEventService(eventRepo, vehicleRepo, cfg.MaxListRange)

	auth := grpcserver.NewAuthenticator([]byte(cfg.JWTKey), cfg.CronSecret).
		WithLimiter(limiter.NewPG(db.Pool, limiter.DefaultPolicy))

	// gRPC server with interceptors
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary(auth),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	}
	gs := grpc.NewServer(opts...)
	grpcserver.RegisterGarageKeeperServer(gs,
		grpcserver.New(sweeper, vehicleSvc, eventSvc, cfg.Grace, logger.Named("grpc")).
			WithNotifications(service.NewNotificationService(notificationRepo)))

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	if cfg.Dev {
		reflection.Register(gs)
	}

	// HTTP: cron trigger, health, metrics
	if !cfg.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	hsrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpserver.NewRouter(httpserver.Options{
			Sweeps:         sweeper,
			Secrets:        auth,
			DB:             db,
			Gatherer:       prometheus.DefaultGatherer,
			Grace:          cfg.Grace,
			Log:            logger.Named("http"),
			TrustedProxies: cfg.TrustedProxies,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.SweepBudget + 10*time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", cfg.TLSCert != ""))
		errCh <- gs.Serve(lis)
	}()
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var sched *scheduler.Scheduler
	if cfg.SweepSchedule != "" {
		sched, err = scheduler.New(scheduler.Config{
			Schedule: cfg.SweepSchedule,
			Grace:    cfg.Grace,
			Budget:   cfg.SweepBudget,
			Location: cfg.Location(),
		}, sweeper, logger.Named("scheduler"))
		if err != nil {
			logger.Fatal("scheduler", zap.Error(err))
		}
		sched.Start(ctx)
	}

	// Wait for stop
	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		exitCode = 1
	}

	hs.Shutdown()
	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hsrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		gs.Stop()
	}

	logger.Info("shutdown complete")
	if exitCode != 0 {
		_ = logger.Sync()
		os.Exit(exitCode)
	}
}
