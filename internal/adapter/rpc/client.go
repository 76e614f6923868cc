package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"tx-preflight/internal/entity"
	"tx-preflight/internal/pkg/apperrors"
	"tx-preflight/internal/usecase"
)

// Compile-time check
var _ usecase.RPCClient = (*Client)(nil)

// Client performs single JSON-RPC exchanges over HTTP(S) or WS(S). Generic
// endpoints get the 2.0 envelope; bitcoin-kind endpoints get the legacy 1.0
// envelope with HTTP basic credentials taken from the endpoint URL's userinfo.
type Client struct {
	client *fasthttp.Client
	logger *zap.Logger
	nextID atomic.Uint64
}

// NewClient creates a new JSON-RPC transport client.
func NewClient(logger *zap.Logger) *Client {
	return &Client{
		client: &fasthttp.Client{
			ReadTimeout: 10 * time.Second,
		},
		logger: logger.Named("RPCClient"),
	}
}

// jsonRPCRequest is the request envelope. Version and ID differ per network kind.
type jsonRPCRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// jsonRPCResponse defines the basic structure for a JSON-RPC response.
type jsonRPCResponse struct {
	ID      any              `json:"id"`
	Jsonrpc string           `json:"jsonrpc,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *jsonRPCErrorRaw `json:"error,omitempty"`
}

// jsonRPCErrorRaw defines the structure for a JSON-RPC error.
type jsonRPCErrorRaw struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Call issues one request to one endpoint and returns the raw result, or a
// typed error for transport failures, timeouts, and application-level errors.
func (c *Client) Call(
	ctx context.Context,
	endpoint entity.Endpoint,
	kind entity.NetworkKind,
	method string,
	params []any,
) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	envelope := jsonRPCRequest{Jsonrpc: "2.0", ID: c.nextID.Add(1), Method: method, Params: params}
	if kind == entity.KindBitcoin {
		// Legacy single-version envelope with a string id.
		envelope = jsonRPCRequest{Jsonrpc: "1.0", ID: "tx-preflight", Method: method, Params: params}
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request for %s: %v", apperrors.ErrInvalidInput, method, err)
	}

	requestURL, authHeader, err := splitCredentials(endpoint.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	if strings.HasPrefix(requestURL, "ws://") || strings.HasPrefix(requestURL, "wss://") {
		return c.callWS(ctx, endpoint, requestURL, authHeader, body)
	}
	return c.callHTTP(ctx, endpoint, requestURL, authHeader, body)
}

// callHTTP performs the JSON-RPC exchange over HTTP/HTTPS.
func (c *Client) callHTTP(
	ctx context.Context,
	endpoint entity.Endpoint,
	requestURL, authHeader string,
	body []byte,
) (json.RawMessage, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if authHeader != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, authHeader)
	}
	req.SetBody(body)

	deadline, hasDeadline := ctx.Deadline()
	timeout := c.client.ReadTimeout
	if hasDeadline {
		requestTimeout := time.Until(deadline)
		if requestTimeout > 0 && (timeout <= 0 || requestTimeout < timeout) {
			timeout = requestTimeout
		}
	}

	var requestErr error
	if timeout <= 0 {
		requestErr = c.client.Do(req, resp)
	} else {
		requestErr = c.client.DoTimeout(req, resp, timeout)
	}

	if requestErr != nil {
		if errors.Is(requestErr, fasthttp.ErrTimeout) {
			c.logger.Debug("HTTP RPC call timed out",
				zap.String("endpoint", endpoint.Name),
				zap.Duration("timeout", timeout),
				zap.Error(requestErr))
			return nil, fmt.Errorf("%w: http request to %s timed out after %v: %v",
				apperrors.ErrTimeout, endpoint.Name, timeout, requestErr)
		}
		c.logger.Debug("HTTP RPC call failed", zap.String("endpoint", endpoint.Name), zap.Error(requestErr))
		return nil, fmt.Errorf("%w: http request to %s failed: %v",
			apperrors.ErrExternalServiceFailure, endpoint.Name, requestErr)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		c.logger.Debug("HTTP RPC call returned non-OK status",
			zap.String("endpoint", endpoint.Name),
			zap.Int("statusCode", resp.StatusCode()))
		return nil, fmt.Errorf("%w: rpc %s returned non-OK http status: %d",
			apperrors.ErrExternalServiceFailure, endpoint.Name, resp.StatusCode())
	}

	return c.parseResponse(endpoint, resp.Body())
}

// callWS performs the JSON-RPC exchange over WS/WSS: one write, one read.
func (c *Client) callWS(
	ctx context.Context,
	endpoint entity.Endpoint,
	requestURL, authHeader string,
	body []byte,
) (json.RawMessage, error) {
	handshakeTimeout := c.client.ReadTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < handshakeTimeout {
			handshakeTimeout = remaining
		}
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	var header http.Header
	if authHeader != "" {
		header = http.Header{"Authorization": []string{authHeader}}
	}

	conn, _, err := dialer.DialContext(ctx, requestURL, header)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: ws dial to %s timed out: %v", apperrors.ErrTimeout, endpoint.Name, ctx.Err())
		}
		c.logger.Debug("WS dial failed", zap.String("endpoint", endpoint.Name), zap.Error(err))
		return nil, fmt.Errorf("%w: ws dial to %s failed: %v", apperrors.ErrExternalServiceFailure, endpoint.Name, err)
	}
	defer conn.Close()

	operationDeadline := time.Now().Add(handshakeTimeout)
	if deadline, ok := ctx.Deadline(); ok {
		operationDeadline = deadline
	}
	_ = conn.SetWriteDeadline(operationDeadline)
	_ = conn.SetReadDeadline(operationDeadline)

	if wErr := conn.WriteMessage(websocket.TextMessage, body); wErr != nil {
		c.logger.Debug("WS write failed", zap.String("endpoint", endpoint.Name), zap.Error(wErr))
		return nil, fmt.Errorf("%w: ws write to %s failed: %v", apperrors.ErrExternalServiceFailure, endpoint.Name, wErr)
	}

	_, message, rErr := conn.ReadMessage()
	if rErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: ws read from %s timed out: %v", apperrors.ErrTimeout, endpoint.Name, ctx.Err())
		}
		c.logger.Debug("WS read failed", zap.String("endpoint", endpoint.Name), zap.Error(rErr))
		return nil, fmt.Errorf("%w: ws read from %s failed: %v", apperrors.ErrExternalServiceFailure, endpoint.Name, rErr)
	}

	return c.parseResponse(endpoint, message)
}

// parseResponse validates the response envelope and extracts the result or the
// application-level error (with its data preserved for revert decoding).
func (c *Client) parseResponse(endpoint entity.Endpoint, body []byte) (json.RawMessage, error) {
	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		c.logger.Debug("RPC response is not valid JSON",
			zap.String("endpoint", endpoint.Name),
			zap.ByteString("body", body),
			zap.Error(err))
		return nil, fmt.Errorf("%w: rpc %s returned invalid JSON response: %v",
			apperrors.ErrExternalServiceFailure, endpoint.Name, err)
	}

	if rpcResp.Error != nil {
		c.logger.Debug("RPC response carried an error",
			zap.String("endpoint", endpoint.Name),
			zap.Int("errorCode", rpcResp.Error.Code),
			zap.String("errorMessage", rpcResp.Error.Message))
		return nil, &usecase.RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
			Data:    errorDataString(rpcResp.Error.Data),
		}
	}

	if rpcResp.Result == nil || string(rpcResp.Result) == "null" {
		c.logger.Debug("RPC response missing result",
			zap.String("endpoint", endpoint.Name),
			zap.ByteString("body", body))
		return nil, fmt.Errorf("%w: rpc %s returned no result",
			apperrors.ErrExternalServiceFailure, endpoint.Name)
	}

	return rpcResp.Result, nil
}

// errorDataString normalizes the error data member: geth-style endpoints put
// the revert payload there either as a hex string or nested under "data".
func errorDataString(data any) string {
	switch v := data.(type) {
	case string:
		return v
	case map[string]any:
		if nested, ok := v["data"].(string); ok {
			return nested
		}
	}
	return ""
}

// splitCredentials strips userinfo from an endpoint URL and turns it into a
// basic Authorization header value.
func splitCredentials(rawURL string) (requestURL, authHeader string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid endpoint url '%s': %v", rawURL, err)
	}
	if u.User == nil {
		return rawURL, "", nil
	}

	password, _ := u.User.Password()
	credentials := u.User.Username() + ":" + password
	authHeader = "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))

	u.User = nil
	return u.String(), authHeader, nil
}
