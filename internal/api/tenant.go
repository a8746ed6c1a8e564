package api

import (
	"context"
	"net/http"

	"github.com/example/bank-ledger/internal/security"
)

// TenantHeader identifies the tenant on every API call. The gateway in
// front of this service authenticates the caller and stamps the header;
// the service itself only scopes data by it.
const TenantHeader = "X-Tenant-ID"

type tenantKey struct{}

func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := r.Header.Get(TenantHeader)
		if tenant == "" {
			security.WriteJSONError(w, r, http.StatusBadRequest, "missing_tenant")
			return
		}
		ctx := context.WithValue(r.Context(), tenantKey{}, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantFromContext(ctx context.Context) string {
	if v := ctx.Value(tenantKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
