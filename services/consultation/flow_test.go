package consultation

import (
	"context"
	"testing"

	"medvive-settlement/pkg/config"
	"medvive-settlement/services/approval"
	"medvive-settlement/services/gateway"
	gatewaymock "medvive-settlement/services/gateway/mock"
	"medvive-settlement/services/settlement"
	"medvive-settlement/services/testutil"
	"medvive-settlement/services/wallet"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPaidConsultationCreditsProviderAfterApproval(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t,
		&Transaction{}, &Consultation{},
		&settlement.Payout{}, &settlement.ProviderFee{},
		&wallet.Account{}, &wallet.JournalEntry{},
		&approval.Token{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	charges, err := settlement.NewCharges(nil)
	require.NoError(t, err)

	ws := wallet.NewService(wallet.ServiceParams{DB: db, Node: node})
	issuer := approval.NewIssuer(approval.IssuerParams{DB: db, Node: node, Channel: approval.LogChannel{}})
	payouts := settlement.NewService(settlement.ServiceParams{
		DB: db, Node: node, Charges: charges, Ledger: ws, Issuer: issuer, Lookup: NewLookup(db),
	})
	authz, err := approval.NewAuthorizer(&config.Config{})
	require.NoError(t, err)
	decisions := approval.NewService(approval.ServiceParams{DB: db, Authorizer: authz, Channel: approval.LogChannel{}, Payouts: payouts})

	gw := gatewaymock.NewMockClient(gomock.NewController(t))
	svc := NewService(ServiceParams{
		DB: db, Node: node, Gateway: gw, Charges: charges, Payouts: payouts,
		Jobs: &fakeJobs{}, Sequence: &fakeSequence{}, Notifier: &fakeNotifier{},
	})

	gw.EXPECT().CreateVirtualAccount(gomock.Any(), gomock.Any()).
		Return(&gateway.VirtualAccount{TransactionID: "gw-1"}, nil)
	gw.EXPECT().GetTransactionStatus(gomock.Any(), "gw-1").
		Return(&gateway.TransactionStatus{Status: "SUCCESS"}, nil)

	txn, err := svc.InitializeTransaction(ctx, request())
	require.NoError(t, err)

	result, err := svc.ConfirmPaymentStatus(ctx, txn.ID)
	require.NoError(t, err)
	require.Empty(t, result.Warnings)
	require.NotNil(t, result.Payout)
	require.Equal(t, int64(7000), result.Payout.Amount)
	require.Equal(t, settlement.PayoutPending, result.Payout.Status)
	require.Equal(t, txn.ID, result.Payout.LinkedTransactionID)

	again, err := payouts.InitializePendingPayout(ctx, settlement.PendingPayoutRequest{
		ConsultationID: "c-1", ProviderID: "prov-1", PatientID: "pat-1",
	})
	require.NoError(t, err)
	require.Equal(t, result.Payout.ID, again.ID)

	var token approval.Token
	require.NoError(t, db.First(&token, "kind = ?", approval.KindPayout).Error)
	require.Equal(t, approval.StatusPending, token.Status)

	_, err = ws.Activate(ctx, "prov-1")
	require.NoError(t, err)

	outcome, err := decisions.ResolveDecision(ctx, token.ID, approval.ActionApprove, "ops-1", "")
	require.NoError(t, err)
	require.True(t, outcome.Applied)

	account, err := ws.GetAccount(ctx, "prov-1")
	require.NoError(t, err)
	require.Equal(t, int64(7000), account.Balance)

	outcome, err = decisions.ResolveDecision(ctx, token.ID, approval.ActionApprove, "ops-1", "")
	require.NoError(t, err)
	require.False(t, outcome.Applied)
	require.Equal(t, approval.ReasonAlreadyProcessed, outcome.Reason)

	account, err = ws.GetAccount(ctx, "prov-1")
	require.NoError(t, err)
	require.Equal(t, int64(7000), account.Balance)
}
