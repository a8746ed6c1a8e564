package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/example/bank-ledger/internal/security"
	"github.com/example/bank-ledger/pkg/audit"
)

// Auditor records tamper-evident events. Mutating API calls land in the
// same hash chain as promotion and dedupe events.
type Auditor interface {
	Record(event string, fields map[string]string) *audit.Entry
	Entries() []*audit.Entry
}

// AuditMiddleware records every mutating request. Reads are not audited;
// they do not change ledger state.
func AuditMiddleware(a Auditor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)
			dur := time.Since(start)

			a.Record("http_request", map[string]string{
				"cid":    security.CorrelationIDFromContext(r.Context()),
				"tenant": tenantFromContext(r.Context()),
				"method": r.Method,
				"path":   r.URL.Path,
				"status": strconv.Itoa(sw.status),
				"dur_ms": strconv.FormatInt(dur.Milliseconds(), 10),
			})
		})
	}
}
