package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mcpguard/gateway/internal/authz"
	"github.com/mcpguard/gateway/internal/ctxkey"
	"github.com/mcpguard/gateway/internal/gatewayerr"
	"github.com/mcpguard/gateway/internal/identity"
	"github.com/mcpguard/gateway/internal/router"
	"github.com/mcpguard/gateway/internal/rpc"
	"github.com/mcpguard/gateway/internal/sinks"
	"github.com/mcpguard/gateway/internal/transport"
)

// errorBody is the client-visible failure shape: a short string plus a
// freshly generated opaque id, never internal detail.
type errorBody struct {
	Error   string `json:"error"`
	ErrorID string `json:"error_id"`
}

func writeErrorBody(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, ErrorID: uuid.New().String()})
}

// TransportResolver maps a resolved route to the live Transport handle the
// handler forwards through; the composition root owns one Transport per
// configured upstream and implements this against that registry.
type TransportResolver interface {
	Resolve(upstreamName string) (transport.Transport, bool)
}

// Handler is pipeline stage 6: parse the JSON-RPC body, authorize the call,
// forward it through the routed upstream transport, filter tools/list
// replies, and emit ToolCall/ToolCallResult audit events.
type Handler struct {
	Router    *router.Router
	Resolver  TransportResolver
	Audit     sinks.AuditSink
	SingleUpstream bool // true when only the default "/mcp" upstream exists
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(ctxkey.IdentityKey{}).(identity.Identity)

	body, err := readBody(r)
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, "malformed request body")
		return
	}

	msg := rpc.Decode(body)
	if !msg.IsRequest() {
		writeErrorBody(w, http.StatusBadRequest, "malformed JSON-RPC request")
		return
	}

	toolName := msg.ToolName()
	if gwErr := authz.Authorize(msg.Method(), toolName, id); gwErr != nil {
		h.Audit.Emit(sinks.Event{
			Timestamp:  time.Now(),
			Type:       sinks.EventAuthorizationDenied,
			IdentityID: id.ID,
			RequestID:  requestID(r.Context()),
			TraceID:    traceID(r.Context()),
			Fields:     map[string]any{"tool": toolName, "reason": string(gwErr.Kind)},
		})
		writeErrorBody(w, http.StatusForbidden, "tool call not authorized")
		return
	}
	h.Audit.Emit(sinks.Event{
		Timestamp:  time.Now(),
		Type:       sinks.EventAuthorized,
		IdentityID: id.ID,
		RequestID:  requestID(r.Context()),
		TraceID:    traceID(r.Context()),
	})

	route, gwErr := h.Router.Match(r.URL.Path)
	if gwErr != nil {
		status := http.StatusNotFound
		writeErrorBody(w, status, "no route for request")
		return
	}

	t, ok := h.Resolver.Resolve(route.Upstream.Name)
	if !ok {
		writeErrorBody(w, http.StatusNotFound, "upstream not available")
		return
	}

	start := time.Now()
	if msg.Method() == "tools/call" {
		h.Audit.Emit(sinks.Event{
			Timestamp:  start,
			Type:       sinks.EventToolCall,
			IdentityID: id.ID,
			RequestID:  requestID(r.Context()),
			TraceID:    traceID(r.Context()),
			Fields:     map[string]any{"tool": toolName, "method": msg.Method()},
		})
	}

	if err := t.Send(r.Context(), body); err != nil {
		h.emitToolCallResult(r.Context(), id, toolName, start, false)
		writeSanitizedTransportError(w, err)
		return
	}
	reply, err := t.Receive(r.Context())
	if err != nil {
		h.emitToolCallResult(r.Context(), id, toolName, start, false)
		writeSanitizedTransportError(w, err)
		return
	}

	if msg.Method() == "tools/list" {
		result := rpc.ResultObject(reply)
		if result != nil {
			filtered, err := authz.FilterToolsList(result, id)
			if err == nil {
				if rewritten, err := rpc.ReplaceResult(reply, filtered); err == nil {
					reply = rewritten
				}
			}
		}
	}

	if msg.Method() == "tools/call" {
		h.emitToolCallResult(r.Context(), id, toolName, start, true)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(reply)
}

func (h *Handler) emitToolCallResult(ctx context.Context, id identity.Identity, tool string, start time.Time, success bool) {
	h.Audit.Emit(sinks.Event{
		Timestamp:  time.Now(),
		Type:       sinks.EventToolCallResult,
		IdentityID: id.ID,
		RequestID:  requestID(ctx),
		TraceID:    traceID(ctx),
		Fields: map[string]any{
			"tool":        tool,
			"success":     success,
			"duration_ms": time.Since(start).Milliseconds(),
		},
	})
}

func writeSanitizedTransportError(w http.ResponseWriter, err error) {
	gwErr, ok := err.(*gatewayerr.Error)
	if !ok {
		writeErrorBody(w, http.StatusBadGateway, "Upstream communication error")
		return
	}
	writeErrorBody(w, http.StatusBadGateway, transport.SanitizeError(gwErr.Kind))
}

// maxBodyBytes bounds the JSON-RPC request body the handler will read.
const maxBodyBytes = 10 << 20

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}
