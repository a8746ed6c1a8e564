package ledger

import "sort"

// GroupDuplicates scans posted journal entries for bank transaction ids that
// appear more than once. Entries without a bank transaction id are ignored;
// adjustments and manual journals legitimately lack one. Within each group
// entries are ordered by CreatedAt ascending (ties broken by id), so the
// first entry is the keeper. Groups come back sorted by bank transaction id.
func GroupDuplicates(entries []*JournalEntry) []DuplicateGroup {
	byTxn := make(map[string][]*JournalEntry)
	for _, e := range entries {
		if e.BankTransactionID == "" {
			continue
		}
		byTxn[e.BankTransactionID] = append(byTxn[e.BankTransactionID], e)
	}

	var groups []DuplicateGroup
	for txnID, dupes := range byTxn {
		if len(dupes) < 2 {
			continue
		}
		sort.Slice(dupes, func(i, j int) bool {
			if dupes[i].CreatedAt.Equal(dupes[j].CreatedAt) {
				return dupes[i].ID < dupes[j].ID
			}
			return dupes[i].CreatedAt.Before(dupes[j].CreatedAt)
		})
		groups = append(groups, DuplicateGroup{BankTransactionID: txnID, Entries: dupes})
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].BankTransactionID < groups[j].BankTransactionID
	})
	return groups
}
