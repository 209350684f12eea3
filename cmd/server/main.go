// Package main runs the backtesting service: REST on gin and a JSON-coded
// gRPC service sharing one BacktestService.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"strategy-backtester/proto"
	"strategy-backtester/services/clickhouse"
	"strategy-backtester/services/config"
	"strategy-backtester/services/engine"
	"strategy-backtester/services/marketdata"
	"strategy-backtester/services/monitoring"
)

// newProvider builds the configured market data provider. The returned
// closer releases any connection it opened.
func newProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (marketdata.Provider, func() error, error) {
	switch cfg.Data.Provider {
	case config.ProviderClickHouse:
		client, err := clickhouse.Open(ctx, cfg.ClickHouse, logger.Named("clickhouse"))
		if err != nil {
			return nil, nil, err
		}
		if err := client.EnsureSchema(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return marketdata.ClickHouseProvider{Store: client}, client.Close, nil
	case config.ProviderCSV:
		return marketdata.CSVProvider{Dir: cfg.Data.CSVDir}, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Data.Provider)
	}
}

func newRouter(service *BacktestService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	service.setupHTTPRoutes(r)
	return r
}

func main() {
	configPath := flag.String("config", os.Getenv("BACKTEST_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if cfg.Environment == "dev" {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting backtesting service",
		zap.String("version", engine.Version),
		zap.String("environment", cfg.Environment),
		zap.String("provider", cfg.Data.Provider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, closeProvider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create market data provider", zap.Error(err))
	}
	defer func() {
		if err := closeProvider(); err != nil {
			logger.Warn("provider close failed", zap.Error(err))
		}
	}()

	metrics := monitoring.NewMetrics()
	service := NewBacktestService(cfg, provider, metrics, logger)

	grpcServer := grpc.NewServer()
	proto.RegisterBacktestServiceServer(grpcServer, service)
	reflection.Register(grpcServer)

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: newRouter(service),
	}

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
		}
		logger.Info("Starting gRPC server", zap.Int("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("Failed to serve gRPC", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	grpcServer.GracefulStop()
	logger.Info("Servers stopped")
}
