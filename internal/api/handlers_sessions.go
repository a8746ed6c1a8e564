package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/bank-ledger/internal/mapping"
	"github.com/example/bank-ledger/internal/security"
	"github.com/example/bank-ledger/internal/session"
	"github.com/example/bank-ledger/internal/staging"
)

type createSessionRequest struct {
	BankAccountID  string `json:"bank_account_id"`
	FiscalPeriodID string `json:"fiscal_period_id"`
	SourceName     string `json:"source_name"`
	Notes          string `json:"notes"`
}

func handleCreateSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		if _, err := deps.Accounts.GetAccount(r.Context(), req.BankAccountID); err != nil {
			writeServiceError(w, r, err)
			return
		}

		now := time.Now().UTC()
		sess := &session.BankImportSession{
			ID:             "sess_" + uuid.New().String(),
			TenantID:       tenantFromContext(r.Context()),
			BankAccountID:  req.BankAccountID,
			FiscalPeriodID: req.FiscalPeriodID,
			SourceName:     req.SourceName,
			Status:         session.StatusDraft,
			Notes:          req.Notes,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := deps.Sessions.CreateSession(r.Context(), sess); err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusCreated, sess)
	}
}

func handleListSessions(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := deps.Sessions.ListSessions(r.Context(), tenantFromContext(r.Context()))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"sessions": sessions})
	}
}

func handleGetSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenantFromContext(r.Context())
		sess, err := deps.Sessions.GetSession(r.Context(), tenant, chi.URLParam(r, "sessionID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		txns, err := deps.Sessions.ListTransactions(r.Context(), tenant, sess.ID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, map[string]any{
			"session":    sess,
			"statistics": session.ComputeStatistics(txns),
		})
	}
}

func handleCancelSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenantFromContext(r.Context())
		sessionID := chi.URLParam(r, "sessionID")

		sess, err := deps.Sessions.GetSession(r.Context(), tenant, sessionID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if !session.CanCancel(sess.Status) {
			writeServiceError(w, r, &session.InvalidOperationError{
				Status: sess.Status, Operation: "cancel", SessionID: sessionID,
			})
			return
		}
		if err := deps.Sessions.TransitionStatus(r.Context(), tenant, sessionID, sess.Status, session.StatusCancelled); err != nil {
			writeServiceError(w, r, err)
			return
		}

		sess.Status = session.StatusCancelled
		writeJSON(w, r, http.StatusOK, sess)
	}
}

type importTransactionsRequest struct {
	Transactions []session.BankTransactionInput `json:"transactions"`
}

type importTransactionsResponse struct {
	Accepted int                      `json:"accepted"`
	Rejected []*session.InputError    `json:"rejected,omitempty"`
	Warnings []string                 `json:"warnings,omitempty"`
	Stats    session.ImportStatistics `json:"statistics"`
}

func handleImportTransactions(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenantFromContext(r.Context())
		sessionID := chi.URLParam(r, "sessionID")

		sess, err := deps.Sessions.GetSession(r.Context(), tenant, sessionID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if sess.Status != session.StatusDraft {
			writeServiceError(w, r, &session.InvalidOperationError{
				Status: sess.Status, Operation: "import_transactions", SessionID: sessionID,
			})
			return
		}

		var req importTransactionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		if len(req.Transactions) > deps.MaxImportRows {
			security.WriteJSONErrorDetails(w, r, http.StatusRequestEntityTooLarge, "too_many_rows",
				"statement exceeds the import row limit", map[string]int{"limit": deps.MaxImportRows})
			return
		}

		txns, inputErrs := session.NormalizeInputs(tenant, sessionID, req.Transactions)
		warnings := session.VerifyRunningBalances(txns)

		if len(txns) > 0 {
			if err := deps.Sessions.SaveTransactions(r.Context(), txns); err != nil {
				writeServiceError(w, r, err)
				return
			}
		}

		writeJSON(w, r, http.StatusOK, importTransactionsResponse{
			Accepted: len(txns),
			Rejected: inputErrs,
			Warnings: warnings,
			Stats:    session.ComputeStatistics(txns),
		})
	}
}

func handleListTransactions(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txns, err := deps.Sessions.ListTransactions(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{
			"transactions": txns,
			"statistics":   session.ComputeStatistics(txns),
		})
	}
}

func handleMapSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := deps.Mapper.MapSession(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, result)
	}
}

func handleBulkMap(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mapping.BulkMappingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		req.TenantID = tenantFromContext(r.Context())
		req.SessionID = chi.URLParam(r, "sessionID")

		result, err := deps.Mapper.ApplyBulk(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, result)
	}
}

type stageRequest struct {
	AllowUnmapped bool `json:"allow_unmapped"`
}

func handleStageSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req stageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		result, err := deps.StagingBuilder.BuildSession(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "sessionID"),
			staging.BuildOptions{AllowUnmapped: req.AllowUnmapped})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		status := http.StatusOK
		if result.Blocked {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, r, status, result)
	}
}

func handleListStaging(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenantFromContext(r.Context())
		sessionID := chi.URLParam(r, "sessionID")

		journals, err := deps.Staging.ListJournals(r.Context(), tenant, sessionID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		rows, err := deps.Staging.ListLedgerRows(r.Context(), tenant, sessionID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{
			"journals":    journals,
			"ledger_rows": rows,
		})
	}
}

func handleVerifySession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		verification, err := deps.StagingBuilder.VerifySession(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, verification)
	}
}

type promoteRequest struct {
	PostedBy string `json:"posted_by"`
}

func handlePromoteSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req promoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		summary, err := deps.Promoter.Promote(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "sessionID"), req.PostedBy)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, summary)
	}
}

func handleBalance(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := r.URL.Query().Get("account_id")
		if accountID == "" {
			security.WriteJSONError(w, r, http.StatusBadRequest, "missing_account_id")
			return
		}
		fiscalPeriodID := r.URL.Query().Get("fiscal_period_id")

		balance, err := deps.Balances.Balance(r.Context(), tenantFromContext(r.Context()), accountID, fiscalPeriodID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{
			"account_id":       accountID,
			"fiscal_period_id": fiscalPeriodID,
			"balance_cents":    balance,
			"balance":          balance.String(),
		})
	}
}
