package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/bank-ledger/internal/coa"
	"github.com/example/bank-ledger/internal/ledger"
	"github.com/example/bank-ledger/internal/mapping"
	"github.com/example/bank-ledger/internal/reconcile"
	"github.com/example/bank-ledger/internal/security"
	"github.com/example/bank-ledger/internal/session"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	cid := security.CorrelationIDFromContext(r.Context())
	if cid != "" {
		w.Header().Set(security.CorrelationIDHeader, cid)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps domain errors onto the HTTP error envelope.
// Unrecognized errors become an opaque 500; their detail stays in the logs.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, ledger.ErrJournalNotFound),
		errors.Is(err, mapping.ErrRuleNotFound),
		errors.Is(err, reconcile.ErrReconciliationNotFound),
		errors.Is(err, reconcile.ErrMatchNotFound),
		errors.Is(err, reconcile.ErrAdjustmentNotFound):
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
		return
	case errors.Is(err, reconcile.ErrStateConflict):
		security.WriteJSONErrorDetails(w, r, http.StatusConflict, "state_conflict", err.Error(), nil)
		return
	case errors.Is(err, reconcile.ErrLedgerAlreadyConfirmed):
		security.WriteJSONErrorDetails(w, r, http.StatusConflict, "ledger_already_confirmed", err.Error(), nil)
		return
	}

	var acct *coa.ErrAccountNotFound
	if errors.As(err, &acct) {
		security.WriteJSONErrorDetails(w, r, http.StatusUnprocessableEntity, "unknown_account", err.Error(), nil)
		return
	}

	var transition *session.InvalidStateTransitionError
	var op *session.InvalidOperationError
	var concurrent *session.ConcurrentTransitionError
	switch {
	case errors.As(err, &transition), errors.As(err, &op), errors.As(err, &concurrent):
		security.WriteJSONErrorDetails(w, r, http.StatusConflict, "state_conflict", err.Error(), nil)
		return
	}

	security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
}
