package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/example/bank-ledger/internal/promote"
	"github.com/example/bank-ledger/internal/session"
	"github.com/example/bank-ledger/pkg/audit"
)

var (
	resetTenant     string
	resetSession    string
	resetStaleAfter time.Duration
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Return a session abandoned mid-promotion to staged",
	Long: `Reset frees a session stuck in posting after a crashed promotion so it
can be promoted again. It refuses sessions updated more recently than
--stale-after, since those may still have a live promoter; promotion is
idempotent, so re-promoting a recovered session creates no duplicates.`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().StringVar(&resetTenant, "tenant", "", "tenant id (required)")
	resetCmd.Flags().StringVar(&resetSession, "session", "", "import session id (required)")
	resetCmd.Flags().DurationVar(&resetStaleAfter, "stale-after", 15*time.Minute, "minimum time since the session's last update")

	resetCmd.MarkFlagRequired("tenant")
	resetCmd.MarkFlagRequired("session")
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	sessions := session.NewPostgresStore(pool)
	chain := audit.NewChainLogger()
	if err := promote.RecoverStalePosting(ctx, sessions, chain, resetTenant, resetSession, resetStaleAfter); err != nil {
		return err
	}

	entries := chain.Entries()
	fmt.Printf("session %s returned to staged (audit %s)\n", resetSession, entries[len(entries)-1].Hash[:12])
	return nil
}
