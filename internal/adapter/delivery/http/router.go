package http

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	handlerhttp "tx-preflight/internal/adapter/handler/http"
)

// RegisterRoutes sets up the routes for the transaction handler and common health checks.
func RegisterRoutes(r *router.Router, h *handlerhttp.TransactionHandler, logger *zap.Logger) {
	logger.Info("Setting up application-specific routes...")

	r.POST("/simulate", h.Simulate)
	r.POST("/confirm", h.Confirm)
	r.POST("/cancel", h.Cancel)
	r.GET("/transaction", h.GetTransaction)
	r.GET("/networks/{network}/endpoints", h.GetNetworkEndpoints)

	logger.Info("Setting up health check route...")
	r.GET("/health", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("OK")
	})

	logger.Info("All routes registered.")
}
