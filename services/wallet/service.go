package wallet

import (
	"context"
	"time"

	"medvive-settlement/pkg/config"
	"medvive-settlement/pkg/db/option"
	"medvive-settlement/pkg/db/pagination"
	"medvive-settlement/pkg/errutil"
	"medvive-settlement/pkg/logger"
	"medvive-settlement/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	currency string
	now      func() time.Time

	accounts repository.Repository[Account]
	journal  repository.Repository[JournalEntry]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	currency := "NGN"
	if p.Config != nil && p.Config.Fees.Currency != "" {
		currency = p.Config.Fees.Currency
	}

	return &Service{
		db:       p.DB,
		node:     p.Node,
		currency: currency,
		now:      time.Now,

		accounts: repository.ProvideStore[Account](p.DB),
		journal:  repository.ProvideStore[JournalEntry](p.DB),
	}
}

// Activate opens a zero balance wallet for the provider, or re-activates an
// existing one.
func (s *Service) Activate(ctx context.Context, providerID string) (*Account, error) {
	log := logger.FromContext(ctx).With(zap.String("provider_id", providerID))
	if providerID == "" {
		return nil, errutil.ValidationFailed("provider id is required", nil)
	}

	existing, err := s.accounts.FindOne(ctx, &Account{ProviderID: providerID})
	if err != nil {
		log.Error("failed to query wallet", zap.Error(err))
		return nil, err
	}

	if existing != nil {
		if existing.Active {
			return existing, nil
		}
		if _, err := s.accounts.UpdateIf(ctx, providerID, map[string]any{"active": false}, map[string]any{
			"active":     true,
			"updated_at": s.now(),
		}); err != nil {
			log.Error("failed to re-activate wallet", zap.Error(err))
			return nil, err
		}
		return s.GetAccount(ctx, providerID)
	}

	account := &Account{
		ProviderID: providerID,
		Balance:    0,
		Active:     true,
		Currency:   s.currency,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		// lost a race with a concurrent activation
		if again, ferr := s.accounts.FindOne(ctx, &Account{ProviderID: providerID}); ferr == nil && again != nil {
			return again, nil
		}
		log.Error("failed to create wallet", zap.Error(err))
		return nil, err
	}

	log.Info("wallet activated")
	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, providerID string) (*Account, error) {
	return s.AccountTx(ctx, nil, providerID)
}

// AccountTx reads the wallet inside tx, locking the row when tx is set.
func (s *Service) AccountTx(ctx context.Context, tx *gorm.DB, providerID string) (*Account, error) {
	var opts []option.QueryOption
	if tx != nil {
		opts = append(opts, option.WithLockingUpdate())
	}

	account, err := s.accounts.WithTrx(tx).FindOne(ctx, &Account{ProviderID: providerID}, opts...)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errutil.NotFound("wallet not found", nil)
	}
	return account, nil
}

// UpdateBalance applies one credit or debit and appends its journal entry
// atomically.
func (s *Service) UpdateBalance(ctx context.Context, req UpdateBalanceRequest) (*JournalEntry, error) {
	var entry *JournalEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.UpdateBalanceTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateBalanceTx is UpdateBalance inside a caller owned transaction. The
// caller's commit or rollback decides the fate of both writes.
func (s *Service) UpdateBalanceTx(ctx context.Context, tx *gorm.DB, req UpdateBalanceRequest) (*JournalEntry, error) {
	log := logger.FromContext(ctx).With(
		zap.String("provider_id", req.ProviderID),
		zap.String("type", string(req.Type)),
		zap.Int64("amount", req.Amount),
	)

	if req.ProviderID == "" {
		return nil, errutil.ValidationFailed("provider id is required", nil)
	}
	if req.Amount <= 0 {
		return nil, errutil.ValidationFailed("amount must be greater than zero", nil,
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: "must be greater than zero"}))
	}
	if !req.Type.Valid() {
		return nil, errutil.ValidationFailed("unknown balance update type", nil,
			errutil.WithDetails(errutil.Detail{Field: "type", Message: "must be CREDIT or DEBIT"}))
	}
	if req.Source == "" {
		req.Source = DefaultSource
	}

	account, err := s.AccountTx(ctx, tx, req.ProviderID)
	if err != nil {
		return nil, err
	}

	last, err := s.journal.WithTrx(tx).FindOne(ctx, &JournalEntry{ProviderID: req.ProviderID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "sequence",
			OrderBy: "desc",
			Allow:   map[string]bool{"sequence": true},
		}),
		option.WithLockingUpdate(),
	)
	if err != nil {
		log.Error("failed to read last journal entry", zap.Error(err))
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	entry := &JournalEntry{
		ID:              s.node.Generate().String(),
		ProviderID:      req.ProviderID,
		Sequence:        1,
		Type:            req.Type,
		Amount:          req.Amount,
		PreviousBalance: account.Balance,
		Source:          req.Source,
		ReferenceID:     req.ReferenceID,
		Note:            req.Note,
		CreatedAt:       now,
	}
	entry.NewBalance = account.Balance + entry.Delta()
	if last != nil {
		entry.Sequence = last.Sequence + 1
		entry.PreviousHash = last.Hash
	}
	entry.Hash = entry.GenerateHash()

	rows, err := s.accounts.WithTrx(tx).UpdateIf(ctx, req.ProviderID,
		map[string]any{"balance": account.Balance},
		map[string]any{"balance": entry.NewBalance, "updated_at": now},
	)
	if err != nil {
		log.Error("failed to write balance", zap.Error(err))
		return nil, err
	}
	if rows == 0 {
		log.Warn("balance changed concurrently")
		return nil, errutil.Conflict("wallet balance changed concurrently", nil)
	}

	if err := s.journal.WithTrx(tx).Create(ctx, entry); err != nil {
		log.Error("failed to append journal entry", zap.Error(err))
		return nil, err
	}

	log.Info("wallet balance updated", zap.Int64("new_balance", entry.NewBalance), zap.String("source", entry.Source))
	return entry, nil
}

func (s *Service) ListJournal(ctx context.Context, providerID string, page pagination.Pagination) ([]*JournalEntry, *pagination.PageInfo, error) {
	if _, err := s.GetAccount(ctx, providerID); err != nil {
		return nil, nil, err
	}

	entries, err := s.journal.Find(ctx, &JournalEntry{ProviderID: providerID}, option.ApplyPagination(page))
	if err != nil {
		return nil, nil, err
	}

	entries, info := pagination.Page(entries, page, func(e *JournalEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return entries, info, nil
}

// Reconcile compares the stored balance with the sum of the journal.
func (s *Service) Reconcile(ctx context.Context, providerID string) (*Reconciliation, error) {
	var (
		account *Account
		entries []*JournalEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		account, err = s.GetAccount(gctx, providerID)
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = s.journal.Find(gctx, &JournalEntry{ProviderID: providerID})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int64
	for _, e := range entries {
		total += e.Delta()
	}

	rec := &Reconciliation{
		ProviderID:   providerID,
		Balance:      account.Balance,
		JournalTotal: total,
		EntryCount:   int64(len(entries)),
		Consistent:   total == account.Balance,
	}
	if !rec.Consistent {
		logger.FromContext(ctx).Warn("wallet out of balance with journal",
			zap.String("provider_id", providerID),
			zap.Int64("balance", account.Balance),
			zap.Int64("journal_total", total),
		)
	}
	return rec, nil
}

// VerifyChain recomputes every entry hash in sequence order.
func (s *Service) VerifyChain(ctx context.Context, providerID string) error {
	entries, err := s.journal.Find(ctx, &JournalEntry{ProviderID: providerID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "sequence",
			OrderBy: "asc",
			Allow:   map[string]bool{"sequence": true},
		}),
	)
	if err != nil {
		return err
	}

	var prev *JournalEntry
	for _, e := range entries {
		switch {
		case prev == nil && (e.Sequence != 1 || e.PreviousHash != ""):
			return errutil.Conflict("journal chain does not start at the first entry", nil,
				errutil.WithDetails(errutil.Detail{Field: e.ID, Message: "unexpected start"}))
		case prev != nil && (e.Sequence != prev.Sequence+1 || e.PreviousHash != prev.Hash):
			return errutil.Conflict("journal chain broken", nil,
				errutil.WithDetails(errutil.Detail{Field: e.ID, Message: "previous hash mismatch"}))
		case prev != nil && e.PreviousBalance != prev.NewBalance:
			return errutil.Conflict("journal balances are not contiguous", nil,
				errutil.WithDetails(errutil.Detail{Field: e.ID, Message: "previous balance mismatch"}))
		case e.GenerateHash() != e.Hash:
			return errutil.Conflict("journal entry tampered", nil,
				errutil.WithDetails(errutil.Detail{Field: e.ID, Message: "hash mismatch"}))
		}
		prev = e
	}
	return nil
}
