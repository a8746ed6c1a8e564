package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/example/bank-ledger/internal/ledger"
	"github.com/example/bank-ledger/pkg/audit"
)

var (
	dedupeTenant  string
	dedupeSince   string
	dedupeConfirm bool
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Find and remove duplicate bank-import journals",
	Long: `Dedupe scans posted bank-import journals for entries sharing a bank
transaction id. The earliest entry in each group is kept; the rest are
deleted together with their GL rows.

Without --confirm this is a dry run that only reports what would be removed.`,
	RunE: runDedupe,
}

func init() {
	dedupeCmd.Flags().StringVar(&dedupeTenant, "tenant", "", "tenant id (required)")
	dedupeCmd.Flags().StringVar(&dedupeSince, "since", "", "only scan journals posted on or after this date (YYYY-MM-DD)")
	dedupeCmd.Flags().BoolVar(&dedupeConfirm, "confirm", false, "actually delete; default is a dry run")

	dedupeCmd.MarkFlagRequired("tenant")
}

func runDedupe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var since time.Time
	if dedupeSince != "" {
		var err error
		if since, err = time.Parse("2006-01-02", dedupeSince); err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	store := ledger.NewPostgresStore(pool)

	entries, err := store.ListJournalsBySource(ctx, dedupeTenant, ledger.SourceBankImport, since)
	if err != nil {
		return err
	}

	groups := ledger.GroupDuplicates(entries)
	if len(groups) == 0 {
		fmt.Printf("scanned %d journals: no duplicates\n", len(entries))
		return nil
	}

	var doomed []*ledger.JournalEntry
	for _, g := range groups {
		keeper := g.Entries[0]
		fmt.Printf("bank txn %s: keeping %s (posted %s)\n",
			g.BankTransactionID, keeper.ID, keeper.CreatedAt.Format(time.RFC3339))
		for _, e := range g.Entries[1:] {
			fmt.Printf("  duplicate %s (posted %s)\n", e.ID, e.CreatedAt.Format(time.RFC3339))
			doomed = append(doomed, e)
		}
	}

	if !dedupeConfirm {
		fmt.Printf("\ndry run: %d duplicate journals across %d groups; rerun with --confirm to delete\n",
			len(doomed), len(groups))
		return nil
	}

	chain := audit.NewChainLogger()
	for _, e := range doomed {
		if err := store.DeleteJournal(ctx, dedupeTenant, e.ID); err != nil {
			return fmt.Errorf("deleting journal %s: %w", e.ID, err)
		}
		entry := chain.Record("dedupe_delete", map[string]string{
			"tenant":   dedupeTenant,
			"journal":  e.ID,
			"bank_txn": e.BankTransactionID,
		})
		fmt.Printf("deleted %s (audit %s)\n", e.ID, entry.Hash[:12])
	}

	fmt.Printf("\ndeleted %d duplicate journals, chain head %s\n", len(doomed), chain.Entries()[len(doomed)-1].Hash)
	return nil
}
