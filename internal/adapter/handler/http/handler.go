package http

import (
	"encoding/json"
	"errors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"tx-preflight/internal/entity"
	"tx-preflight/internal/pkg/apperrors"
	"tx-preflight/internal/usecase"
)

// TransactionHandler exposes the lifecycle and router query surface over HTTP.
type TransactionHandler struct {
	lifecycle usecase.Lifecycle
	router    usecase.Router
	logger    *zap.Logger
}

func NewTransactionHandler(lc usecase.Lifecycle, rt usecase.Router, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{
		lifecycle: lc,
		router:    rt,
		logger:    logger.Named("TransactionHandler"),
	}
}

// transactionView is the UI-facing rendering of the current state.
type transactionView struct {
	State        entity.TransactionState `json:"state"`
	Label        string                  `json:"label"`
	CanConfirm   bool                    `json:"canConfirm"`
	IsProcessing bool                    `json:"isProcessing"`
	IsTerminal   bool                    `json:"isTerminal"`
	Protection   string                  `json:"protection,omitempty"`
}

// Simulate handles requests to simulate a proposed transfer.
func (h *TransactionHandler) Simulate(ctx *fasthttp.RequestCtx) {
	req, ok := h.decodeRequest(ctx)
	if !ok {
		return
	}

	state, err := h.lifecycle.Simulate(ctx, req)
	if err != nil {
		h.writeLifecycleError(ctx, "simulate", err)
		return
	}
	h.writeView(ctx, state, req.Network)
}

// Confirm handles requests to sign and broadcast the previously simulated
// transfer. The body carries the final parameters so the receipt is verified
// against exactly what will be signed.
func (h *TransactionHandler) Confirm(ctx *fasthttp.RequestCtx) {
	req, ok := h.decodeRequest(ctx)
	if !ok {
		return
	}

	state, err := h.lifecycle.Confirm(ctx, req)
	if err != nil {
		h.writeLifecycleError(ctx, "confirm", err)
		return
	}
	h.writeView(ctx, state, req.Network)
}

// Cancel handles requests to abandon the current flow.
func (h *TransactionHandler) Cancel(ctx *fasthttp.RequestCtx) {
	state, err := h.lifecycle.Cancel(ctx)
	if err != nil {
		h.writeLifecycleError(ctx, "cancel", err)
		return
	}
	h.writeView(ctx, state, "")
}

// GetTransaction handles requests for the current transaction state.
func (h *TransactionHandler) GetTransaction(ctx *fasthttp.RequestCtx) {
	h.writeView(ctx, h.lifecycle.State(), "")
}

// GetNetworkEndpoints handles requests for a network's endpoint registry with
// current health and protection status.
func (h *TransactionHandler) GetNetworkEndpoints(ctx *fasthttp.RequestCtx) {
	networkStr, ok := ctx.UserValue("network").(string)
	if !ok || networkStr == "" {
		h.logger.Error("Failed to get network from context")
		ctx.Error("Bad Request: Invalid network", fasthttp.StatusBadRequest)
		return
	}

	snapshot := h.router.HealthSnapshot()
	endpoints, found := snapshot[entity.Network(networkStr)]
	if !found {
		h.logger.Warn("Unknown network requested", zap.String("network", networkStr))
		ctx.Error("Not Found", fasthttp.StatusNotFound)
		return
	}

	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(endpoints); err != nil {
		h.logger.Error("Failed to encode endpoint response", zap.Error(err))
	}
}

func (h *TransactionHandler) decodeRequest(ctx *fasthttp.RequestCtx) (entity.SimulationRequest, bool) {
	var req entity.SimulationRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.logger.Error("Failed to decode request body", zap.Error(err))
		ctx.Error("Bad Request: Invalid JSON body", fasthttp.StatusBadRequest)
		return entity.SimulationRequest{}, false
	}
	return req, true
}

func (h *TransactionHandler) writeView(ctx *fasthttp.RequestCtx, state entity.TransactionState, network entity.Network) {
	view := transactionView{
		State:        state,
		Label:        state.Label(),
		CanConfirm:   state.CanConfirm(),
		IsProcessing: state.IsProcessing(),
		IsTerminal:   state.IsTerminal(),
	}
	if network != "" {
		if best, ok := h.router.BestEndpoint(network); ok {
			view.Protection = best.ProtectionLabel()
		}
	}

	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(view); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *TransactionHandler) writeLifecycleError(ctx *fasthttp.RequestCtx, op string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrBusy):
		h.logger.Warn("Operation rejected: flow busy", zap.String("op", op), zap.Error(err))
		ctx.Error("Conflict: "+err.Error(), fasthttp.StatusConflict)
	case errors.Is(err, apperrors.ErrInvalidTransition):
		h.logger.Warn("Operation rejected: invalid transition", zap.String("op", op), zap.Error(err))
		ctx.Error("Conflict: "+err.Error(), fasthttp.StatusConflict)
	default:
		h.logger.Error("Operation failed", zap.String("op", op), zap.Error(err))
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
	}
}
