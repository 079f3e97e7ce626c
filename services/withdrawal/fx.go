package withdrawal

import (
	"medvive-settlement/services/approval"
	"medvive-settlement/services/wallet"

	"go.uber.org/fx"
)

var Module = fx.Module("withdrawal",
	fx.Provide(
		NewService,
		func(w *wallet.Service) WalletLedger { return w },
		func(i *approval.Issuer) TokenIssuer { return i },
		func(s *Service) approval.WithdrawalSettler { return s },
	),
)

var HTTP = fx.Module("withdrawal.http",
	fx.Invoke(RegisterRoutes),
)
