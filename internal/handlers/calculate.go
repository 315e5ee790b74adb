package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"calculator-service/internal/cache"
	"calculator-service/internal/calc"
	"calculator-service/internal/coordinator"
	"calculator-service/pkg/logging"
)

// CalculateHandler holds dependencies for the /v1/calculate endpoint.
type CalculateHandler struct {
	Coordinator *coordinator.Coordinator
}

func NewCalculateHandler(c *coordinator.Coordinator) *CalculateHandler {
	return &CalculateHandler{Coordinator: c}
}

// CalculateResponse is the success body: the numeric result plus whether it
// was served from the cache.
type CalculateResponse struct {
	Result float64 `json:"result"`
	Cached bool    `json:"cached"`
}

// Calculate handles POST /v1/calculate.
func (h *CalculateHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req calc.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		logger.Warn("invalid request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, string(calc.KindParse), "invalid JSON: "+err.Error())
		return
	}

	out, err := h.Coordinator.Resolve(ctx, req)
	if err != nil {
		h.respondError(w, logger, err)
		return
	}

	logger.Info("calculation_resolved",
		zap.Bool("cache_hit", out.Cached),
		zap.Bool("shared", out.Shared),
		zap.Duration("total_latency_ms", time.Since(start)),
	)

	writeJSON(w, http.StatusOK, CalculateResponse{Result: out.Result, Cached: out.Cached})
}

// respondError maps resolve failures to HTTP statuses. Structural problems
// (unparsable input, wrong operand count) are 400, semantically invalid
// calculations are 422, storage failures are 500.
func (h *CalculateHandler) respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if kind, ok := calc.KindOf(err); ok {
		switch kind {
		case calc.KindParse, calc.KindArity:
			writeError(w, http.StatusBadRequest, string(kind), err.Error())
		default:
			writeError(w, http.StatusUnprocessableEntity, string(kind), err.Error())
		}
		return
	}

	var storageErr *cache.StorageError
	if errors.As(err, &storageErr) {
		logger.Error("cache unavailable", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage", "cache unavailable")
		return
	}

	logger.Error("calculation failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal", "internal error")
}
