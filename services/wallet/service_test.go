package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"medvive-settlement/pkg/db/pagination"
	"medvive-settlement/pkg/errutil"
	"medvive-settlement/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &Account{}, &JournalEntry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParams{DB: db, Node: node}), db
}

func TestActivateIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Activate(ctx, "prov-1")
	require.NoError(t, err)
	require.True(t, first.Active)
	require.Equal(t, int64(0), first.Balance)
	require.Equal(t, "NGN", first.Currency)

	_, err = svc.UpdateBalance(ctx, UpdateBalanceRequest{ProviderID: "prov-1", Amount: 500, Type: Credit})
	require.NoError(t, err)

	again, err := svc.Activate(ctx, "prov-1")
	require.NoError(t, err)
	require.Equal(t, int64(500), again.Balance)
}

func TestActivateReactivatesInactiveWallet(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&Account{ProviderID: "prov-1", Balance: 40, Active: false, Currency: "NGN"}).Error)

	account, err := svc.Activate(ctx, "prov-1")
	require.NoError(t, err)
	require.True(t, account.Active)
	require.Equal(t, int64(40), account.Balance)
}

func TestUpdateBalanceCreditAndDebit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Activate(ctx, "prov-1")
	require.NoError(t, err)

	credit, err := svc.UpdateBalance(ctx, UpdateBalanceRequest{
		ProviderID:  "prov-1",
		Amount:      7000,
		Type:        Credit,
		Source:      "consultation_payout",
		ReferenceID: "payout-1",
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), credit.PreviousBalance)
	require.Equal(t, int64(7000), credit.NewBalance)
	require.Equal(t, int64(1), credit.Sequence)
	require.Empty(t, credit.PreviousHash)

	debit, err := svc.UpdateBalance(ctx, UpdateBalanceRequest{ProviderID: "prov-1", Amount: 2500, Type: Debit})
	require.NoError(t, err)
	require.Equal(t, int64(7000), debit.PreviousBalance)
	require.Equal(t, int64(4500), debit.NewBalance)
	require.Equal(t, DefaultSource, debit.Source)
	require.Equal(t, credit.Hash, debit.PreviousHash)

	account, err := svc.GetAccount(ctx, "prov-1")
	require.NoError(t, err)
	require.Equal(t, int64(4500), account.Balance)

	require.NoError(t, svc.VerifyChain(ctx, "prov-1"))

	rec, err := svc.Reconcile(ctx, "prov-1")
	require.NoError(t, err)
	require.True(t, rec.Consistent)
	require.Equal(t, int64(2), rec.EntryCount)
}

func TestUpdateBalanceAllowsNegativeBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Activate(ctx, "prov-1")
	require.NoError(t, err)

	entry, err := svc.UpdateBalance(ctx, UpdateBalanceRequest{ProviderID: "prov-1", Amount: 300, Type: Debit})
	require.NoError(t, err)
	require.Equal(t, int64(-300), entry.NewBalance)
}

func TestUpdateBalanceValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Activate(ctx, "prov-1")
	require.NoError(t, err)

	tests := []struct {
		name string
		req  UpdateBalanceRequest
		code errutil.CoreStatus
	}{
		{"zero amount", UpdateBalanceRequest{ProviderID: "prov-1", Amount: 0, Type: Credit}, errutil.StatusValidationFailed},
		{"negative amount", UpdateBalanceRequest{ProviderID: "prov-1", Amount: -5, Type: Credit}, errutil.StatusValidationFailed},
		{"unknown type", UpdateBalanceRequest{ProviderID: "prov-1", Amount: 5, Type: "BONUS"}, errutil.StatusValidationFailed},
		{"missing wallet", UpdateBalanceRequest{ProviderID: "prov-2", Amount: 5, Type: Credit}, errutil.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateBalance(ctx, tt.req)
			require.Error(t, err)
			require.Equal(t, tt.code, errutil.Code(err))
		})
	}

	rec, err := svc.Reconcile(ctx, "prov-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), rec.EntryCount)
	require.Equal(t, int64(0), rec.Balance)
}

func TestUpdateBalanceTxRollsBackWithCaller(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.Activate(ctx, "prov-1")
	require.NoError(t, err)

	boom := errors.New("downstream write failed")
	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.UpdateBalanceTx(ctx, tx, UpdateBalanceRequest{ProviderID: "prov-1", Amount: 100, Type: Credit}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rec, err := svc.Reconcile(ctx, "prov-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), rec.Balance)
	require.Equal(t, int64(0), rec.EntryCount)
}

func TestConcurrentUpdatesKeepLedgerConsistent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Activate(ctx, "prov-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.UpdateBalance(ctx, UpdateBalanceRequest{ProviderID: "prov-1", Amount: 100, Type: Credit})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rec, err := svc.Reconcile(ctx, "prov-1")
	require.NoError(t, err)
	require.Equal(t, int64(1000), rec.Balance)
	require.Equal(t, int64(10), rec.EntryCount)
	require.True(t, rec.Consistent)
	require.NoError(t, svc.VerifyChain(ctx, "prov-1"))
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.Activate(ctx, "prov-1")
	require.NoError(t, err)
	first, err := svc.UpdateBalance(ctx, UpdateBalanceRequest{ProviderID: "prov-1", Amount: 100, Type: Credit})
	require.NoError(t, err)
	_, err = svc.UpdateBalance(ctx, UpdateBalanceRequest{ProviderID: "prov-1", Amount: 50, Type: Credit})
	require.NoError(t, err)

	require.NoError(t, db.Model(&JournalEntry{}).Where("id = ?", first.ID).Update("amount", 900).Error)

	err = svc.VerifyChain(ctx, "prov-1")
	require.True(t, errutil.Is(err, errutil.StatusConflict))

	rec, err := svc.Reconcile(ctx, "prov-1")
	require.NoError(t, err)
	require.False(t, rec.Consistent)
}

func TestListJournalPages(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Activate(ctx, "prov-1")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := svc.UpdateBalance(ctx, UpdateBalanceRequest{ProviderID: "prov-1", Amount: int64(10 * (i + 1)), Type: Credit})
		require.NoError(t, err)
	}

	entries, info, err := svc.ListJournal(ctx, "prov-1", pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.True(t, info.HasMore)
	require.NotEmpty(t, info.NextCursor)
	require.Equal(t, int64(3), entries[0].Sequence)

	_, _, err = svc.ListJournal(ctx, "prov-9", pagination.Pagination{Limit: 2})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}
