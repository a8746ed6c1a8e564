package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/bank-ledger/internal/money"
	"github.com/example/bank-ledger/internal/reconcile"
	"github.com/example/bank-ledger/internal/security"
	"github.com/example/bank-ledger/pkg/audit"
)

type createReconciliationRequest struct {
	BankAccountID  string      `json:"bank_account_id"`
	PeriodStart    time.Time   `json:"period_start"`
	PeriodEnd      time.Time   `json:"period_end"`
	OpeningBalance money.Cents `json:"opening_balance"`
	ClosingBalance money.Cents `json:"closing_balance"`
	Notes          string      `json:"notes"`
}

func handleCreateReconciliation(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createReconciliationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		if !req.PeriodEnd.After(req.PeriodStart) {
			security.WriteJSONErrorDetails(w, r, http.StatusBadRequest, "invalid_period",
				"period_end must be after period_start", nil)
			return
		}
		if _, err := deps.Accounts.GetAccount(r.Context(), req.BankAccountID); err != nil {
			writeServiceError(w, r, err)
			return
		}

		now := time.Now().UTC()
		recon := &reconcile.Session{
			ID:             "recon_" + uuid.New().String(),
			TenantID:       tenantFromContext(r.Context()),
			BankAccountID:  req.BankAccountID,
			PeriodStart:    req.PeriodStart,
			PeriodEnd:      req.PeriodEnd,
			OpeningBalance: req.OpeningBalance,
			ClosingBalance: req.ClosingBalance,
			Status:         reconcile.SessionDraft,
			Notes:          req.Notes,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := deps.ReconStore.CreateSession(r.Context(), recon); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, recon)
	}
}

func handleListReconciliations(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := deps.ReconStore.ListSessions(r.Context(), tenantFromContext(r.Context()), r.URL.Query().Get("bank_account_id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"reconciliations": sessions})
	}
}

func handleGetReconciliation(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recon, err := deps.ReconStore.GetSession(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "reconID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, recon)
	}
}

type bankFeedRequest struct {
	Transactions []*reconcile.BankTransaction `json:"transactions"`
}

func handleAutoMatch(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bankFeedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		candidates, err := deps.Reconciliations.RunAutoMatch(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "reconID"), req.Transactions)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"candidates": candidates})
	}
}

func handleReconSummary(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bankFeedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		summary, err := deps.Reconciliations.Summarize(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "reconID"), req.Transactions)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, summary)
	}
}

func handleListMatches(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matches, err := deps.ReconStore.ListMatches(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "reconID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"matches": matches})
	}
}

type confirmMatchRequest struct {
	ConfirmedBy string `json:"confirmed_by"`
}

func handleConfirmMatch(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmMatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		match, err := deps.Reconciliations.ConfirmMatch(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "matchID"), req.ConfirmedBy)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, match)
	}
}

func handleRejectMatch(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		match, err := deps.Reconciliations.RejectMatch(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "matchID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, match)
	}
}

type createAdjustmentBody struct {
	Type           reconcile.AdjustmentType `json:"type"`
	Description    string                   `json:"description"`
	Amount         money.Cents              `json:"amount"`
	AccountID      string                   `json:"account_id"`
	FiscalPeriodID string                   `json:"fiscal_period_id"`
	CreatedBy      string                   `json:"created_by"`
}

func handleCreateAdjustment(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createAdjustmentBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		adj, err := deps.Adjustments.Create(r.Context(), reconcile.CreateAdjustmentRequest{
			TenantID:         tenantFromContext(r.Context()),
			ReconciliationID: chi.URLParam(r, "reconID"),
			Type:             body.Type,
			Description:      body.Description,
			Amount:           body.Amount,
			AccountID:        body.AccountID,
			FiscalPeriodID:   body.FiscalPeriodID,
			CreatedBy:        body.CreatedBy,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, adj)
	}
}

func handleListAdjustments(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adjustments, err := deps.ReconStore.ListAdjustments(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "reconID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{
			"adjustments": adjustments,
			"net_effect":  reconcile.NetAdjustmentEffect(adjustments),
		})
	}
}

type reverseAdjustmentRequest struct {
	Reason     string `json:"reason"`
	ReversedBy string `json:"reversed_by"`
}

func handleReverseAdjustment(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reverseAdjustmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		adj, err := deps.Adjustments.Reverse(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "adjustmentID"), req.Reason, req.ReversedBy)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, adj)
	}
}

func handleCompleteReconciliation(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenantFromContext(r.Context())
		reconID := chi.URLParam(r, "reconID")

		if err := deps.ReconStore.UpdateSessionStatus(r.Context(), tenant, reconID, reconcile.SessionInProgress, reconcile.SessionCompleted); err != nil {
			writeServiceError(w, r, err)
			return
		}
		recon, err := deps.ReconStore.GetSession(r.Context(), tenant, reconID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, recon)
	}
}

func handleAuditChain(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Auditor == nil {
			writeJSON(w, r, http.StatusOK, map[string]any{"entries": []*audit.Entry{}, "chain_valid": true})
			return
		}
		entries := deps.Auditor.Entries()
		writeJSON(w, r, http.StatusOK, map[string]any{
			"entries":     entries,
			"chain_valid": audit.VerifyChain(entries),
		})
	}
}
