package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperror"
)

func statusForKind(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return http.StatusUnprocessableEntity
	case apperror.KindConflict:
		return http.StatusConflict
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindExpired:
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

// writeError renders domain errors with their structured details. Anything else is an
// infrastructure failure: logged and reported without internals.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	e, ok := apperror.As(err)
	if !ok {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		logger.Error("request failed",
			"err", err,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"trace_id", otelx.TraceID(r.Context()),
		)
		httpx.WriteError(w, status, "internal", "internal error", nil)
		return
	}

	details := map[string]any{}
	if e.Field != "" {
		details["field"] = e.Field
	}
	if e.Interval != nil {
		details["conflicting_start"] = e.Interval.Start.UTC().Format(time.RFC3339)
		details["conflicting_end"] = e.Interval.End.UTC().Format(time.RFC3339)
	}
	if e.From != "" {
		details["from"] = e.From
		details["to"] = e.To
	}
	if len(details) == 0 {
		details = nil
	}
	httpx.WriteError(w, statusForKind(e.Kind), string(e.Kind), e.Message, details)
}

func badRequest(w http.ResponseWriter, field, msg string) {
	var details map[string]any
	if field != "" {
		details = map[string]any{"field": field}
	}
	httpx.WriteError(w, http.StatusBadRequest, "bad_request", msg, details)
}
