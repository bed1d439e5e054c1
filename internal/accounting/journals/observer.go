package journals

import "context"

// Observer is notified after ledger writes commit.
type Observer interface {
	LedgerChanged(ctx context.Context, module string, entries int)
}

// Observers fans a notification out to every member.
type Observers []Observer

// LedgerChanged implements Observer.
func (o Observers) LedgerChanged(ctx context.Context, module string, entries int) {
	for _, obs := range o {
		if obs != nil {
			obs.LedgerChanged(ctx, module, entries)
		}
	}
}

// Notify calls obs when it is set.
func Notify(ctx context.Context, obs Observer, module string, entries int) {
	if obs == nil || entries == 0 {
		return
	}
	obs.LedgerChanged(ctx, module, entries)
}
