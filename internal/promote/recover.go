package promote

import (
	"context"
	"fmt"
	"time"

	"github.com/example/bank-ledger/internal/session"
	"github.com/example/bank-ledger/pkg/audit"
)

// RecoverStalePosting returns a session abandoned mid-promotion to staged.
// A crash between the staged -> posting transition and the final status
// write leaves the session in posting with no promoter running; this frees
// it so Promote can be retried. The staleAfter guard keeps a live promotion
// from being yanked out from under its promoter, and the compare-and-set
// loses cleanly if one finishes concurrently.
func RecoverStalePosting(ctx context.Context, sessions session.Store, auditLog *audit.ChainLogger, tenantID, sessionID string, staleAfter time.Duration) error {
	sess, err := sessions.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != session.StatusPosting {
		return &session.InvalidOperationError{Status: sess.Status, Operation: "recover_posting", SessionID: sessionID}
	}
	if age := time.Since(sess.UpdatedAt); age < staleAfter {
		return fmt.Errorf("session %s has been posting for %s, less than the %s stale threshold", sessionID, age.Round(time.Second), staleAfter)
	}

	if err := sessions.TransitionStatus(ctx, tenantID, sessionID, session.StatusPosting, session.StatusStaged); err != nil {
		return err
	}
	if auditLog != nil {
		auditLog.Record("posting_recovered", map[string]string{
			"tenant": tenantID, "session": sessionID,
			"stale_for": time.Since(sess.UpdatedAt).Round(time.Second).String(),
		})
	}
	return nil
}
