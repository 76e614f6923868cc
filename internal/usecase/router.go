package usecase

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tx-preflight/internal/config"
	"tx-preflight/internal/entity"
	"tx-preflight/internal/pkg/apperrors"
)

// Compile-time check to ensure endpointRouter implements Router
var _ Router = (*endpointRouter)(nil)

// EndpointAttempt records why one endpoint failed during a routed call.
type EndpointAttempt struct {
	Name  string
	URL   string
	Err   string
	Cause error
}

// AllEndpointsFailedError is returned when every endpoint for a network failed
// for one logical call. Callers see which endpoints were tried and why.
type AllEndpointsFailedError struct {
	Network  entity.Network
	Attempts []EndpointAttempt
}

func (e *AllEndpointsFailedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s (%s): %s", a.Name, a.URL, a.Err))
	}
	return fmt.Sprintf("all %d endpoints failed for network '%s': [%s]",
		len(e.Attempts), e.Network, strings.Join(parts, "; "))
}

// Unwrap exposes every per-endpoint cause so callers can match on the
// underlying errors (revert payloads, timeouts) with errors.Is/As.
func (e *AllEndpointsFailedError) Unwrap() []error {
	causes := make([]error, 0, len(e.Attempts)+1)
	for _, a := range e.Attempts {
		if a.Cause != nil {
			causes = append(causes, a.Cause)
		}
	}
	return append(causes, apperrors.ErrExternalServiceFailure)
}

type endpointRouter struct {
	registry map[entity.Network][]entity.Endpoint
	kinds    map[entity.Network]entity.NetworkKind
	client   RPCClient
	timeout  time.Duration
	logger   *zap.Logger

	// mu serializes every mutation and read-modify-write on the health maps;
	// no live reference to them ever leaves this struct.
	mu       sync.Mutex
	healthy  map[string]bool
	lastGood map[entity.Network]string
}

// NewRouter creates the endpoint router. The registry must already be sorted
// by ascending priority per network (config.Endpoints does this).
func NewRouter(
	registry map[entity.Network][]entity.Endpoint,
	kinds map[entity.Network]entity.NetworkKind,
	client RPCClient,
	cfg config.RouterConfig,
	logger *zap.Logger,
) Router {
	timeout := cfg.GetAttemptTimeout()
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &endpointRouter{
		registry: registry,
		kinds:    kinds,
		client:   client,
		timeout:  timeout,
		logger:   logger.Named("Router"),
		healthy:  make(map[string]bool),
		lastGood: make(map[entity.Network]string),
	}
}

// Send walks the network's endpoints in ascending priority order and returns
// the first success. Endpoints are tried sequentially, never raced, so failure
// diagnostics stay ordered and attributable. One pass only; callers needing
// retries across time re-invoke Send.
func (r *endpointRouter) Send(ctx context.Context, network entity.Network, method string, params []any) (*RouteResult, error) {
	endpoints, ok := r.registry[network]
	if !ok || len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: '%s'", apperrors.ErrNoEndpoints, network)
	}
	kind, ok := r.kinds[network]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", apperrors.ErrUnsupportedNetwork, network)
	}

	attempts := make([]EndpointAttempt, 0, len(endpoints))
	for _, ep := range endpoints {
		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		raw, err := r.client.Call(attemptCtx, ep, kind, method, params)
		cancel()
		latency := time.Since(start)

		if err != nil {
			r.markHealth(ep, false)
			attempts = append(attempts, EndpointAttempt{Name: ep.Name, URL: ep.URL, Err: err.Error(), Cause: err})
			r.logger.Warn("Endpoint attempt failed",
				zap.String("network", network.String()),
				zap.String("endpoint", ep.Name),
				zap.String("method", method),
				zap.Duration("latency", latency),
				zap.Error(err))
			continue
		}

		r.markHealth(ep, true)
		r.logger.Debug("Endpoint attempt succeeded",
			zap.String("network", network.String()),
			zap.String("endpoint", ep.Name),
			zap.String("method", method),
			zap.Bool("protected", ep.Protected),
			zap.Duration("latency", latency))
		return &RouteResult{Raw: raw, Endpoint: ep, Latency: latency}, nil
	}

	err := &AllEndpointsFailedError{Network: network, Attempts: attempts}
	r.logger.Error("All endpoints failed",
		zap.String("network", network.String()),
		zap.String("method", method),
		zap.Int("attempts", len(attempts)))
	return nil, err
}

// Broadcast submits a signed payload using the same endpoint-iteration and
// health-tracking machinery as Send, with the framing each network kind expects.
func (r *endpointRouter) Broadcast(ctx context.Context, network entity.Network, signedPayload []byte) (string, error) {
	kind, ok := r.kinds[network]
	if !ok {
		return "", fmt.Errorf("%w: '%s'", apperrors.ErrUnsupportedNetwork, network)
	}

	var method string
	var params []any
	switch kind {
	case entity.KindBitcoin:
		method = "sendrawtransaction"
		params = []any{hex.EncodeToString(signedPayload)}
	default:
		method = "eth_sendRawTransaction"
		params = []any{"0x" + hex.EncodeToString(signedPayload)}
	}

	result, err := r.Send(ctx, network, method, params)
	if err != nil {
		return "", err
	}

	var txHash string
	if err := json.Unmarshal(result.Raw, &txHash); err != nil {
		return "", fmt.Errorf("%w: broadcast returned non-string result: %v",
			apperrors.ErrExternalServiceFailure, err)
	}
	return txHash, nil
}

// BestEndpoint returns the advisory pick for a network: the last successful
// endpoint if still healthy, otherwise the highest-priority healthy one,
// otherwise the highest-priority one. False when none are registered.
func (r *endpointRouter) BestEndpoint(network entity.Network) (entity.Endpoint, bool) {
	endpoints, ok := r.registry[network]
	if !ok || len(endpoints) == 0 {
		return entity.Endpoint{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if lastURL, ok := r.lastGood[network]; ok && r.healthy[lastURL] {
		for _, ep := range endpoints {
			if ep.URL == lastURL {
				return ep, true
			}
		}
	}
	for _, ep := range endpoints {
		if healthy, attempted := r.healthy[ep.URL]; attempted && healthy {
			return ep, true
		}
	}
	return endpoints[0], true
}

// HealthSnapshot returns a copy of the current health view for the query surface.
func (r *endpointRouter) HealthSnapshot() map[entity.Network][]entity.EndpointHealth {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[entity.Network][]entity.EndpointHealth, len(r.registry))
	for network, endpoints := range r.registry {
		views := make([]entity.EndpointHealth, 0, len(endpoints))
		for _, ep := range endpoints {
			view := entity.EndpointHealth{
				Endpoint: ep,
				LastGood: r.lastGood[network] == ep.URL,
			}
			if healthy, attempted := r.healthy[ep.URL]; attempted {
				h := healthy
				view.Healthy = &h
			}
			views = append(views, view)
		}
		snapshot[network] = views
	}
	return snapshot
}

// ResetHealth drops all health history, failing back to the static priority order.
func (r *endpointRouter) ResetHealth() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healthy = make(map[string]bool)
	r.lastGood = make(map[entity.Network]string)
	r.logger.Info("Endpoint health state reset")
}

func (r *endpointRouter) markHealth(ep entity.Endpoint, healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healthy[ep.URL] = healthy
	if healthy {
		r.lastGood[ep.Network] = ep.URL
	}
}
