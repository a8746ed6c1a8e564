package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/example/bank-ledger/internal/ledger"
	"github.com/example/bank-ledger/internal/staging"
)

var (
	verifyTenant     string
	verifySession    string
	verifyStagingDB  string
	verifyProduction bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-run the balance verifier over a session's staging ledger",
	Long: `Verify reads a session's staged journals and GL rows straight from the
staging database and re-runs the balance checks over both. The two views are
built independently, so a mismatch between them points at a staging bug
rather than bad input.

With --production the check runs over the session's posted production ledger
rows instead.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyTenant, "tenant", "", "tenant id (required)")
	verifyCmd.Flags().StringVar(&verifySession, "session", "", "import session id (required)")
	verifyCmd.Flags().StringVar(&verifyStagingDB, "staging-db", "", "staging sqlite path (default $STAGING_DB_PATH or staging.db)")
	verifyCmd.Flags().BoolVar(&verifyProduction, "production", false, "verify the posted production rows instead of staging")

	verifyCmd.MarkFlagRequired("tenant")
	verifyCmd.MarkFlagRequired("session")
}

func stagingDBPath() string {
	if verifyStagingDB != "" {
		return verifyStagingDB
	}
	if v := os.Getenv("STAGING_DB_PATH"); v != "" {
		return v
	}
	return "staging.db"
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if verifyProduction {
		return verifyProductionRows(ctx)
	}

	db, err := sql.Open("sqlite3", stagingDBPath())
	if err != nil {
		return fmt.Errorf("opening staging database: %w", err)
	}
	defer db.Close()

	store := staging.NewStore(db)

	journals, err := store.ListJournals(ctx, verifyTenant, verifySession)
	if err != nil {
		return err
	}
	rows, err := store.ListLedgerRows(ctx, verifyTenant, verifySession)
	if err != nil {
		return err
	}
	if len(journals) == 0 && len(rows) == 0 {
		return fmt.Errorf("no staged data for session %s", verifySession)
	}

	journalV := ledger.VerifyLines(staging.JournalLines(journals))
	rowV := ledger.VerifyLines(staging.LedgerLines(rows))

	fmt.Printf("session %s: %d journals, %d gl rows\n\n", verifySession, len(journals), len(rows))
	printVerification("journals", journalV)
	printVerification("gl rows", rowV)

	if !journalV.IsBalanced || !rowV.IsBalanced {
		return fmt.Errorf("session %s is out of balance", verifySession)
	}
	if journalV.TotalDebits != rowV.TotalDebits || journalV.TotalCredits != rowV.TotalCredits {
		return fmt.Errorf("journal and gl totals disagree: %s/%s vs %s/%s",
			journalV.TotalDebits, journalV.TotalCredits, rowV.TotalDebits, rowV.TotalCredits)
	}

	fmt.Println("OK")
	return nil
}

func verifyProductionRows(ctx context.Context) error {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	rows, err := ledger.NewPostgresStore(pool).ListLedgerForSession(ctx, verifyTenant, verifySession)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no posted rows for session %s", verifySession)
	}

	v := ledger.VerifyLedgerRows(rows)
	fmt.Printf("session %s: %d posted gl rows\n\n", verifySession, len(rows))
	printVerification("posted", v)

	if !v.IsBalanced {
		return fmt.Errorf("session %s is out of balance", verifySession)
	}
	fmt.Println("OK")
	return nil
}

func printVerification(label string, v ledger.Verification) {
	status := "balanced"
	if !v.IsBalanced {
		status = fmt.Sprintf("OUT OF BALANCE by %s", v.Difference)
	}
	fmt.Printf("%-10s debits %12s  credits %12s  %s\n", label, v.TotalDebits, v.TotalCredits, status)
	for _, a := range v.Accounts {
		fmt.Printf("  %-6s %-30s debits %12s  credits %12s\n", a.AccountCode, a.AccountName, a.Debits, a.Credits)
	}
	for _, e := range v.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	fmt.Println()
}
