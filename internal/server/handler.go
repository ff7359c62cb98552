package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/usage-meter/internal/message"
	"github.com/vnmchuo/usage-meter/internal/upstream"
	"github.com/vnmchuo/usage-meter/internal/usage"
	"github.com/vnmchuo/usage-meter/pkg/ratelimit"
)

// Source is the message-source collaborator.
type Source interface {
	Fetch(ctx context.Context) ([]message.Record, error)
}

type Handler struct {
	source     Source
	aggregator *usage.Aggregator
	limiter    *ratelimit.Limiter // nil disables rate limiting
	tracer     trace.Tracer
	logger     *slog.Logger
}

func NewHandler(source Source, aggregator *usage.Aggregator, limiter *ratelimit.Limiter, tracer trace.Tracer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		source:     source,
		aggregator: aggregator,
		limiter:    limiter,
		tracer:     tracer,
		logger:     logger,
	}
}

type usageResponse struct {
	Usage []usage.Record `json:"usage"`
}

// HandleUsage prices the current billing period and returns the records in
// fetch order.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	w.Header().Set("X-Request-ID", requestID)

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(ctx, clientKey(r))
		if err != nil || !allowed {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error":       "rate limit exceeded",
				"retry_after": "60s",
			})
			return
		}
	}

	ctx, span := h.tracer.Start(ctx, "usage.report")
	defer span.End()
	span.SetAttributes(attribute.String("request_id", requestID))

	records, err := h.source.Fetch(ctx)
	if err != nil {
		h.logger.Error("fetching messages failed", "request_id", requestID, "error", err)
		h.writeError(w, err)
		return
	}
	span.SetAttributes(attribute.Int("messages.fetched", len(records)))

	result, err := h.aggregator.BuildUsage(ctx, records)
	if err != nil {
		h.logger.Error("building usage failed", "request_id", requestID, "error", err)
		h.writeError(w, err)
		return
	}
	span.SetAttributes(attribute.Int("usage.records", len(result)))

	if result == nil {
		result = []usage.Record{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(usageResponse{Usage: result})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := "internal error"
	if errors.Is(err, upstream.ErrUnavailable) {
		status = http.StatusServiceUnavailable
		body = "failed to fetch data from external service"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": body})
}

// clientKey identifies the caller for rate limiting. X-Forwarded-For wins
// over the socket address so limits survive a reverse proxy.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
