package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/bank-ledger/internal/mapping"
	"github.com/example/bank-ledger/internal/security"
)

func handleListRules(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rules, err := deps.Rules.ListRules(r.Context(), tenantFromContext(r.Context()))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"rules": rules})
	}
}

func handleSaveRule(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rule mapping.Rule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		rule.TenantID = tenantFromContext(r.Context())
		if rule.ID == "" {
			rule.ID = "rule_" + uuid.New().String()
			rule.CreatedAt = time.Now().UTC()
			rule.IsActive = true
		}
		if rule.TransactionType == "" {
			rule.TransactionType = mapping.TypeBoth
		}
		if err := rule.Validate(); err != nil {
			security.WriteJSONErrorDetails(w, r, http.StatusBadRequest, "invalid_rule", err.Error(), nil)
			return
		}
		if _, err := deps.Accounts.GetAccount(r.Context(), rule.AccountID); err != nil {
			writeServiceError(w, r, err)
			return
		}

		if err := deps.Rules.SaveRule(r.Context(), &rule); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, &rule)
	}
}

func handleDeleteRule(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Rules.DeleteRule(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "ruleID")); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
