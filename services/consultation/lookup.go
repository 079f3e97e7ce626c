package consultation

import (
	"context"

	"medvive-settlement/pkg/db/option"
	"medvive-settlement/pkg/repository"
	"medvive-settlement/services/settlement"

	"gorm.io/gorm"
)

// Lookup exposes completed transactions to settlement without a dependency
// on Service.
type Lookup struct {
	transactions repository.Repository[Transaction]
}

func NewLookup(db *gorm.DB) *Lookup {
	return &Lookup{transactions: repository.ProvideStore[Transaction](db)}
}

func (l *Lookup) CompletedForConsultation(ctx context.Context, consultationID, providerID string) (*settlement.LinkedTransaction, error) {
	txn, err := l.transactions.FindOne(ctx,
		&Transaction{ConsultationID: consultationID, ProviderID: providerID, Status: StatusCompleted},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "payment_confirmed_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"payment_confirmed_at": true},
		}),
	)
	if err != nil || txn == nil {
		return nil, err
	}
	linked := txn.Linked()
	return &linked, nil
}
