package core

// JSON-RPC client (part of C10): request, request_with_priority, fetch
// (first-success across a URL list), fire_and_forget_multicast (best-effort
// broadcast with a per-destination timeout and silently dropped failures),
// and batch_request.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Priority selects which dispatch class a request is issued under (§4.10).
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// DefaultCallTimeout bounds every outbound call made through HTTPRPCClient;
// a caller's context deadline still applies when it is shorter.
const DefaultCallTimeout = 5 * time.Second

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type jsonRPCError struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

// RPCClient is the outbound surface used by ingest, replication and
// leader-handoff to talk to peer cluster members.
type RPCClient interface {
	Request(ctx context.Context, url, method string, params, result interface{}) error
	RequestWithPriority(ctx context.Context, url, method string, priority Priority, params, result interface{}) error
	Fetch(ctx context.Context, urls []string, method string, params, result interface{}) error
	FireAndForgetMulticast(method string, params interface{}, urls []string)
	BatchRequest(ctx context.Context, url string, calls []BatchCall) ([]BatchResult, error)
}

// BatchCall is one method invocation within a BatchRequest.
type BatchCall struct {
	Method string
	Params interface{}
}

// BatchResult is one response within a BatchRequest, in call order.
type BatchResult struct {
	Result json.RawMessage
	Err    error
}

// HTTPRPCClient is the default RPCClient, issuing JSON-RPC 2.0 over HTTP.
type HTTPRPCClient struct {
	http *http.Client
	log  *logrus.Logger
}

// NewHTTPRPCClient returns a client whose base HTTP client timeout is 30s;
// per-call timeouts still apply via context.
func NewHTTPRPCClient(log *logrus.Logger) *HTTPRPCClient {
	return &HTTPRPCClient{http: &http.Client{Timeout: 30 * time.Second}, log: log}
}

func (c *HTTPRPCClient) doCall(ctx context.Context, url, method string, params, result interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return WrapError(KindDeserialize, "marshal rpc params", err)
	}
	reqBody, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  raw,
	})
	if err != nil {
		return WrapError(KindDeserialize, "marshal rpc request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return WrapError(KindRpcClient, "build rpc request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return WrapError(KindRpcClient, fmt.Sprintf("call %s at %s", method, url), err)
	}
	defer resp.Body.Close()

	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return WrapError(KindDeserialize, "decode rpc response", err)
	}
	if rpcResp.Error != nil {
		return NewError(Kind(rpcResp.Error.Kind), rpcResp.Error.Message)
	}
	if result == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return WrapError(KindDeserialize, "unmarshal rpc result", err)
	}
	return nil
}

// Request issues method at url with PriorityNormal semantics (no distinct
// transport behavior beyond the default call timeout; priority only affects
// dispatch ordering on the receiving server, see internal/rpcserver).
func (c *HTTPRPCClient) Request(ctx context.Context, url, method string, params, result interface{}) error {
	return c.RequestWithPriority(ctx, url, method, PriorityNormal, params, result)
}

// RequestWithPriority issues method at url. priority is not sent on the
// wire: the receiving server queues each call by the priority its method
// was registered with.
func (c *HTTPRPCClient) RequestWithPriority(ctx context.Context, url, method string, priority Priority, params, result interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultCallTimeout)
	defer cancel()
	return c.doCall(ctx, url, method, params, result)
}

// Fetch tries urls in order, returning the first successful response.
func (c *HTTPRPCClient) Fetch(ctx context.Context, urls []string, method string, params, result interface{}) error {
	var lastErr error
	for _, url := range urls {
		if err := c.Request(ctx, url, method, params, result); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = NewError(KindRpcClient, "no urls to fetch from")
	}
	return lastErr
}

// FireAndForgetMulticast best-effort broadcasts method to every url in
// urls. Each destination gets its own timeout; failures are logged and
// never surfaced to the caller.
func (c *HTTPRPCClient) FireAndForgetMulticast(method string, params interface{}, urls []string) {
	for _, url := range urls {
		url := url
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), DefaultCallTimeout)
			defer cancel()
			if err := c.doCall(ctx, url, method, params, nil); err != nil && c.log != nil {
				c.log.WithFields(logrus.Fields{"method": method, "url": url}).WithError(err).
					Debug("fire-and-forget multicast destination failed")
			}
		}()
	}
}

// BatchRequest issues every call in calls against url, each with its own
// outbound JSON-RPC request, preserving call order in the returned results.
func (c *HTTPRPCClient) BatchRequest(ctx context.Context, url string, calls []BatchCall) ([]BatchResult, error) {
	out := make([]BatchResult, len(calls))
	for i, call := range calls {
		var raw json.RawMessage
		err := c.Request(ctx, url, call.Method, call.Params, &raw)
		out[i] = BatchResult{Result: raw, Err: err}
	}
	return out, nil
}
