package journals

import (
	"context"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Post validates a draft against the ledger invariants and writes it through tx.
// Callers own the transaction; nothing is written when an error is returned.
func Post(ctx context.Context, tx TxRepository, in EntryInput) (JournalEntry, error) {
	in = in.Normalized()
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if err := checkAccounts(ctx, tx, in.BusinessID, in.Lines); err != nil {
		return JournalEntry{}, err
	}
	entry, err := tx.InsertEntry(ctx, in)
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := tx.InsertLines(ctx, entry.ID, in.Lines)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	if in.SourceModule != "" {
		if err := tx.LinkSource(ctx, in.SourceModule, in.SourceID, entry.ID); err != nil {
			return JournalEntry{}, err
		}
	}
	return entry, nil
}

// checkAccounts requires every line to target an active leaf account of the business.
func checkAccounts(ctx context.Context, tx TxRepository, businessID int64, lines []LineInput) error {
	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.AccountID
	}
	return RequirePostingAccounts(ctx, tx, businessID, ids...)
}

// RequirePostingAccounts fails unless every id is an active leaf account of the business.
func RequirePostingAccounts(ctx context.Context, tx TxRepository, businessID int64, accountIDs ...int64) error {
	seen := make(map[int64]struct{}, len(accountIDs))
	ids := make([]int64, 0, len(accountIDs))
	for _, id := range accountIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	refs, err := tx.PostingAccounts(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		ref, ok := refs[id]
		if !ok {
			return shared.NotFound("account", id)
		}
		if ref.BusinessID != businessID {
			return fmt.Errorf("%w: account %d belongs to business %d", shared.ErrNotPostingAccount, id, ref.BusinessID)
		}
		if ref.HasChildren {
			return fmt.Errorf("%w: account %d is a head account", shared.ErrNotPostingAccount, id)
		}
		if !ref.IsActive {
			return fmt.Errorf("%w: account %d is inactive", shared.ErrNotPostingAccount, id)
		}
	}
	return nil
}
