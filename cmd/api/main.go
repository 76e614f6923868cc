package main

import (
	"log"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	deliveryhttp "tx-preflight/internal/adapter/delivery/http"
	handlerhttp "tx-preflight/internal/adapter/handler/http"
	"tx-preflight/internal/adapter/repository"
	"tx-preflight/internal/adapter/rpc"
	"tx-preflight/internal/adapter/signer"
	"tx-preflight/internal/config"
	"tx-preflight/internal/logger"
	"tx-preflight/internal/usecase"
)

func main() {
	// --- Configuration ---
	cfgPath := "configs"
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration from %s: %v", cfgPath, err)
	}

	// --- Logger ---
	zapLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to setup logger: %v", err)
	}
	defer zapLogger.Sync() // Ensure logs are flushed before exiting
	zapLogger.Info("Logger initialized", zap.Any("config", cfg.Logger))

	// --- Dependency Injection (Manual) ---
	zapLogger.Info("Initializing dependencies...")

	rpcClient := rpc.NewClient(zapLogger)
	endpointRouter := usecase.NewRouter(cfg.Endpoints(), cfg.Kinds(), rpcClient, cfg.Router, zapLogger)
	receiptCache := repository.NewGoCacheReceiptRepo(cfg.Simulation, zapLogger)

	simulator, err := usecase.NewSimulator(endpointRouter, receiptCache, cfg.Kinds(), cfg.Simulation, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize simulator", zap.Error(err))
	}

	txSigner, err := signer.NewLocalSigner(zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize signer", zap.Error(err))
	}

	lifecycle := usecase.NewLifecycle(simulator, endpointRouter, txSigner, zapLogger)

	// Handlers
	txHandler := handlerhttp.NewTransactionHandler(lifecycle, endpointRouter, zapLogger)

	// --- HTTP Router & Server ---
	zapLogger.Info("Setting up HTTP router...")
	r := router.New()
	deliveryhttp.RegisterRoutes(r, txHandler, zapLogger)

	// Middleware (example: logging)
	loggingMiddleware := func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			zapLogger.Info("Request received",
				zap.ByteString("method", ctx.Method()),
				zap.ByteString("uri", ctx.RequestURI()))
			next(ctx)
		}
	}

	serverAddr := ":" + cfg.Server.Port
	zapLogger.Info("Starting HTTP server", zap.String("address", serverAddr))

	if err := fasthttp.ListenAndServe(serverAddr, loggingMiddleware(r.Handler)); err != nil {
		zapLogger.Fatal("Failed to start server", zap.Error(err))
	}
}
