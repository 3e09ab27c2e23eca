// Package httpwebhook is a thin, optional HTTP intake for ingestpipe.
// Webhook intake is out of core scope (the engine's real input is a
// batch of RawItem values handed in directly, usually by a scheduled
// job or CLI invocation) — this adapter exists only to give the
// per-status HTTP mapping a concrete home, the way the teacher's own
// internal/adapter/inbound/http package turns a domain result into an
// HTTP response.
package httpwebhook

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/catalogforge/ingestpipe/internal/domain/replay"
	"github.com/catalogforge/ingestpipe/internal/service"
)

// maxRequestBodySize bounds one webhook POST body, mirroring the
// teacher's http.MaxBytesReader guard on its own POST handler.
const maxRequestBodySize = 1 << 20

// Handler adapts one service.Pipeline to an HTTP POST endpoint: the
// body is a JSON array of RawItem, the response is a JSON array of
// outcomes, and the overall status code is picked from the single
// worst outcome in the batch (rejected > created > noop/updated),
// since a webhook caller only gets one status line per request.
type Handler struct {
	pipeline *service.Pipeline
	logger   *slog.Logger
}

// NewHandler builds a Handler over pipeline. logger may be nil, in
// which case failures are dropped silently (matching the teacher's
// NewPolicyService(ctx, store, logger) constructors, which also accept
// a nil logger in test call sites).
func NewHandler(pipeline *service.Pipeline, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{pipeline: pipeline, logger: logger}
}

// ServeHTTP implements http.Handler. Only POST is accepted; every other
// method is rejected with 405, matching the teacher's mcpHandler dispatch.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var items []service.RawItem
	if err := json.Unmarshal(body, &items); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON batch")
		return
	}
	if len(items) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one item")
		return
	}

	result, err := h.pipeline.Run(r.Context(), items)
	if err != nil {
		h.logger.Error("pipeline run failed", "error", err)
		writeError(w, http.StatusInternalServerError, "pipeline run failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForBatch(result.Outcomes))
	_ = json.NewEncoder(w).Encode(result.Outcomes)
}

// statusForBatch picks the HTTP status for a multi-item batch response:
// any rejected outcome makes the whole response 422 (spec §7's
// created→201 / updated,noop→200 / rejected→422 mapping, generalized to
// a batch by taking the worst single-item outcome), a single created
// item with nothing rejected is 201, and anything else is 200.
func statusForBatch(outcomes []replay.Outcome) int {
	sawCreated := false
	for _, o := range outcomes {
		switch o.Status {
		case "rejected":
			return http.StatusUnprocessableEntity
		case "created":
			sawCreated = true
		}
	}
	if sawCreated {
		return http.StatusCreated
	}
	return http.StatusOK
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
