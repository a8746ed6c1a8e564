package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/bank-ledger/internal/coa"
	"github.com/example/bank-ledger/internal/mapping"
	"github.com/example/bank-ledger/internal/money"
	"github.com/example/bank-ledger/internal/promote"
	"github.com/example/bank-ledger/internal/reconcile"
	"github.com/example/bank-ledger/internal/security"
	"github.com/example/bank-ledger/internal/session"
	"github.com/example/bank-ledger/internal/staging"
)

// BalanceReader answers point queries against the production ledger.
type BalanceReader interface {
	Balance(ctx context.Context, tenantID, accountID, fiscalPeriodID string) (money.Cents, error)
}

type Dependencies struct {
	Logger *slog.Logger

	Sessions session.Store
	Accounts coa.Directory

	Mapper *mapping.Engine
	Rules  mapping.RuleStore

	StagingBuilder *staging.Builder
	Staging        *staging.Store
	Promoter       *promote.Promoter
	Balances       BalanceReader

	Reconciliations *reconcile.Service
	ReconStore      reconcile.Store
	Adjustments     *reconcile.AdjustmentBuilder

	Auditor        Auditor
	RateLimiter    *security.RedisTokenBucket
	AdminAllowlist []*net.IPNet
	MaxBodyBytes   int64
	MaxImportRows  int
}

func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = 4 << 20
	}
	if deps.MaxImportRows <= 0 {
		deps.MaxImportRows = 10000
	}

	createSessionV, err := security.NewJSONSchemaValidator(createSessionSchema)
	if err != nil {
		return nil, err
	}
	importV, err := security.NewJSONSchemaValidator(importTransactionsSchema)
	if err != nil {
		return nil, err
	}
	bulkMapV, err := security.NewJSONSchemaValidator(bulkMapSchema)
	if err != nil {
		return nil, err
	}
	stageV, err := security.NewJSONSchemaValidator(stageSchema)
	if err != nil {
		return nil, err
	}
	promoteV, err := security.NewJSONSchemaValidator(promoteSchema)
	if err != nil {
		return nil, err
	}
	ruleV, err := security.NewJSONSchemaValidator(mappingRuleSchema)
	if err != nil {
		return nil, err
	}
	createReconV, err := security.NewJSONSchemaValidator(createReconciliationSchema)
	if err != nil {
		return nil, err
	}
	bankFeedV, err := security.NewJSONSchemaValidator(bankFeedSchema)
	if err != nil {
		return nil, err
	}
	confirmV, err := security.NewJSONSchemaValidator(confirmMatchSchema)
	if err != nil {
		return nil, err
	}
	adjustmentV, err := security.NewJSONSchemaValidator(createAdjustmentSchema)
	if err != nil {
		return nil, err
	}
	reverseV, err := security.NewJSONSchemaValidator(reverseAdjustmentSchema)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(security.CorrelationID)
	r.Use(RequestLogger(deps.Logger))
	r.Use(security.MaxBody(deps.MaxBodyBytes))
	if deps.RateLimiter != nil {
		r.Use(security.RateLimitMiddleware(deps.RateLimiter, security.TenantKey))
	}
	if deps.Auditor != nil {
		r.Use(AuditMiddleware(deps.Auditor))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(RequireTenant)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", handleListSessions(deps))
			r.With(createSessionV.Middleware).Post("/", handleCreateSession(deps))

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", handleGetSession(deps))
				r.Post("/cancel", handleCancelSession(deps))

				r.Get("/transactions", handleListTransactions(deps))
				r.With(importV.Middleware).Post("/transactions", handleImportTransactions(deps))

				r.Post("/map", handleMapSession(deps))
				r.With(bulkMapV.Middleware).Post("/bulk-map", handleBulkMap(deps))

				r.With(stageV.Middleware).Post("/stage", handleStageSession(deps))
				r.Get("/staging", handleListStaging(deps))
				r.Get("/verify", handleVerifySession(deps))

				r.With(promoteV.Middleware).Post("/promote", handlePromoteSession(deps))
			})
		})

		r.Route("/mapping-rules", func(r chi.Router) {
			r.Get("/", handleListRules(deps))
			r.With(ruleV.Middleware).Post("/", handleSaveRule(deps))
			r.Delete("/{ruleID}", handleDeleteRule(deps))
		})

		r.Route("/reconciliations", func(r chi.Router) {
			r.Get("/", handleListReconciliations(deps))
			r.With(createReconV.Middleware).Post("/", handleCreateReconciliation(deps))

			r.Route("/{reconID}", func(r chi.Router) {
				r.Get("/", handleGetReconciliation(deps))
				r.With(bankFeedV.Middleware).Post("/automatch", handleAutoMatch(deps))
				r.With(bankFeedV.Middleware).Post("/summary", handleReconSummary(deps))
				r.Get("/matches", handleListMatches(deps))
				r.Get("/adjustments", handleListAdjustments(deps))
				r.With(adjustmentV.Middleware).Post("/adjustments", handleCreateAdjustment(deps))
				r.Post("/complete", handleCompleteReconciliation(deps))
			})
		})

		r.Route("/matches/{matchID}", func(r chi.Router) {
			r.With(confirmV.Middleware).Post("/confirm", handleConfirmMatch(deps))
			r.Post("/reject", handleRejectMatch(deps))
		})

		r.With(reverseV.Middleware).Post("/adjustments/{adjustmentID}/reverse", handleReverseAdjustment(deps))

		r.Get("/balances", handleBalance(deps))

		// Maintenance surface, gated to operator networks.
		r.Route("/admin", func(r chi.Router) {
			r.Use(security.IPAllowlist(deps.AdminAllowlist))
			r.Get("/audit-chain", handleAuditChain(deps))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r, nil
}
