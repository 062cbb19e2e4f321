// Package rpcserver is the JSON-RPC surface (C10): a method dispatcher with
// two priority classes served over HTTP via chi, plus a /health route.
package rpcserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"tx-orderer/core"
)

// Handler is one registered JSON-RPC method implementation.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

type registration struct {
	handler  Handler
	priority core.Priority
}

// job is one dispatched call awaiting execution by a priority worker.
type job struct {
	ctx     context.Context
	reg     registration
	params  json.RawMessage
	resultC chan jobResult
}

type jobResult struct {
	value interface{}
	err   error
}

// Server is the JSON-RPC dispatcher: requests are queued onto one of two
// priority channels and drained by their own worker pool, so a burst of
// Normal-priority traffic cannot starve High-priority calls like
// get_order_commitment_info and sync_leader_tx_orderer (§4.10).
type Server struct {
	log     *logrus.Logger
	router  *chi.Mux
	methods map[string]registration

	highJobs   chan job
	normalJobs chan job
}

// NewServer builds a Server with workerHigh workers draining the High queue
// and workerNormal workers draining the Normal queue.
func NewServer(log *logrus.Logger, workerHigh, workerNormal int) *Server {
	s := &Server{
		log:        log,
		methods:    make(map[string]registration),
		highJobs:   make(chan job, 256),
		normalJobs: make(chan job, 1024),
	}

	s.router = chi.NewRouter()
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Post("/", s.handleJSONRPC)
	s.router.Get("/health", s.handleHealth)

	for i := 0; i < workerHigh; i++ {
		go s.drain(s.highJobs)
	}
	for i := 0; i < workerNormal; i++ {
		go s.drain(s.normalJobs)
	}
	return s
}

// Router returns the underlying chi.Mux for use with http.Server or tests.
func (s *Server) Router() http.Handler { return s.router }

// Register installs a named method at the given priority. Re-registering a
// name replaces the prior handler.
func (s *Server) Register(name string, priority core.Priority, h Handler) {
	s.methods[name] = registration{handler: h, priority: priority}
}

func (s *Server) drain(jobs chan job) {
	for j := range jobs {
		value, err := j.reg.handler(j.ctx, j.params)
		j.resultC <- jobResult{value: value, err: err}
	}
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, "", core.KindDeserialize, err.Error())
		return
	}

	reg, ok := s.methods[req.Method]
	if !ok {
		writeRPCError(w, req.ID, core.KindInvalidTransaction, "unknown method: "+req.Method)
		return
	}

	resultC := make(chan jobResult, 1)
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	j := job{ctx: ctx, reg: reg, params: req.Params, resultC: resultC}
	switch reg.priority {
	case core.PriorityHigh:
		s.highJobs <- j
	default:
		s.normalJobs <- j
	}

	select {
	case res := <-resultC:
		if res.err != nil {
			kind, _ := core.KindOf(res.err)
			writeRPCError(w, req.ID, kind, res.err.Error())
			return
		}
		writeRPCResult(w, req.ID, res.value)
	case <-ctx.Done():
		writeRPCError(w, req.ID, core.KindRpcClient, "request timed out")
	}
}

func writeRPCResult(w http.ResponseWriter, id string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		writeRPCError(w, id, core.KindDeserialize, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Result: raw})
}

func writeRPCError(w http.ResponseWriter, id string, kind core.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rpcResponse{
		JSONRPC: "2.0", ID: id,
		Error: &rpcError{Message: message, Kind: string(kind)},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
