package security

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

const CorrelationIDHeader = "X-Correlation-ID"

// maxInboundIDLen caps caller-supplied correlation ids so they stay usable
// as log fields and redis keys.
const maxInboundIDLen = 64

type correlationIDKey struct{}

// CorrelationID propagates the caller's correlation id, minting one when the
// request arrives without it. The id is echoed on the response and attached
// to the request context for logging and error payloads.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := r.Header.Get(CorrelationIDHeader)
		if cid == "" || len(cid) > maxInboundIDLen {
			cid = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), correlationIDKey{}, cid)
		w.Header().Set(CorrelationIDHeader, cid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func CorrelationIDFromContext(ctx context.Context) string {
	if v := ctx.Value(correlationIDKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// LoggerFrom returns the logger with the request's correlation id attached.
func LoggerFrom(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if cid := CorrelationIDFromContext(ctx); cid != "" {
		return logger.With("correlation_id", cid)
	}
	return logger
}
