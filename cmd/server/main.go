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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/rl1809/versioned-store/internal/adapter/handler"
	"github.com/rl1809/versioned-store/internal/adapter/storage"
	"github.com/rl1809/versioned-store/internal/config"
	"github.com/rl1809/versioned-store/internal/core/compactid"
	"github.com/rl1809/versioned-store/internal/core/service"
	"github.com/rl1809/versioned-store/internal/logger"
	"github.com/rl1809/versioned-store/internal/metrics"
	"github.com/rl1809/versioned-store/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewLogger(logger.Config{}).Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.NewLogger(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize database
	db, dialect, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, storage.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxOpenConns / 2,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to connect database")
	}
	if err := storage.EnsureSchema(ctx, db, dialect); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}
	log.Info().Str("driver", dialect.Driver).Msg("connected to database")

	opts := []service.Option{
		service.WithLogger(log.Component("documents")),
		service.WithMetrics(m),
	}

	// Initialize Redis
	var rdb *redis.Client
	var redisAdapter *storage.RedisAdapter
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to connect redis")
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")

		redisAdapter = storage.NewRedisAdapter(rdb, storage.RedisOptions{
			CacheTTL:       cfg.Redis.CacheTTL,
			IdempotencyTTL: cfg.Redis.IdempotencyTTL,
		})
		opts = append(opts,
			service.WithCache(redisAdapter),
			service.WithChangeFeed(cfg.ChangeFeed.QueueSize),
		)
	} else {
		log.Warn().Msg("REDIS_ADDR not set, running without cache and change stream")
	}

	// Initialize service
	documents := service.NewDocumentService(storage.NewSQLAdapter(db, dialect), compactid.Default(), opts...)

	// Start change feed workers; Changes is nil without Redis and the pool is empty.
	pool := worker.Start(cfg.ChangeFeed.Workers, documents.Changes(), redisAdapter, log.Component("change-feed"), m)
	if documents.Changes() != nil {
		log.Info().Int("workers", cfg.ChangeFeed.Workers).Msg("started change feed workers")
	}

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.GrpcMetricsInterceptor(m, log.Component("grpc"))))
	handler.RegisterDocumentServiceServer(grpcServer, handler.NewGRPCHandler(documents))

	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Server.GRPCAddr).Msg("failed to listen")
		}

		go func() {
			log.Info().Str("addr", cfg.Server.GRPCAddr).Msg("gRPC server listening")
			if err := grpcServer.Serve(lis); err != nil {
				log.Error().Err(err).Msg("gRPC server error")
			}
		}()
	}

	// Initialize HTTP servers
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler.NewHTTPHandler(documents).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsServer := handler.NewMetricsServer(cfg.Server.MetricsAddr, reg)

	for name, srv := range map[string]*http.Server{"HTTP": httpServer, "metrics": metricsServer} {
		if srv.Addr == "" {
			continue
		}
		go func() {
			log.Info().Str("addr", srv.Addr).Msgf("%s server listening", name)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msgf("%s server error", name)
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	metricsServer.Shutdown(shutdownCtx)
	log.Info().Msg("HTTP servers stopped")

	grpcServer.GracefulStop()
	log.Info().Msg("gRPC server stopped")

	// Close change feed and wait for workers
	documents.Close()
	pool.Wait()
	log.Info().Msg("workers stopped")

	// Close connections
	if rdb != nil {
		rdb.Close()
	}
	db.Close()
	log.Info().Msg("connections closed")
}
