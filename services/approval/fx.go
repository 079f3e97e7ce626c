package approval

import (
	"medvive-settlement/pkg/config"
	"medvive-settlement/pkg/util"

	"go.uber.org/fx"
)

var Module = fx.Module("approval",
	fx.Provide(
		newSigner,
		NewChannel,
		NewAuthorizer,
		NewIssuer,
		NewService,
	),
)

var HTTP = fx.Module("approval.http",
	fx.Invoke(RegisterRoutes),
)

func newSigner(cfg *config.Config) *util.ActionSigner {
	return util.NewActionSigner(cfg.Decision.SigningKey, cfg.Decision.TokenTTL)
}
