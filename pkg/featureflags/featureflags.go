package featureflags

import (
	"context"

	"medvive-settlement/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

const WithdrawalInitiationBalanceCheck = "withdrawal_initiation_balance_check"

type FeatureFlag interface {
	Features(ctx context.Context) ([]flagsmith.Flag, error)
	Flags(ctx context.Context, identifier string, traits ...*flagsmith.Trait) (flagsmith.Flags, error)
	// IsEnabled reports the environment flag state. It is false when no
	// flagsmith key is configured or the lookup fails.
	IsEnabled(ctx context.Context, name string) bool
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		return &featureflag{}
	}

	var opts []flagsmith.Option
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (s *featureflag) Features(ctx context.Context) ([]flagsmith.Flag, error) {
	if s.client == nil {
		return nil, nil
	}

	flags, err := s.client.GetEnvironmentFlags()
	if err != nil {
		return nil, err
	}

	return flags.AllFlags(), nil
}

func (s *featureflag) Flags(ctx context.Context, identifier string, traits ...*flagsmith.Trait) (flagsmith.Flags, error) {
	if s.client == nil {
		return flagsmith.Flags{}, nil
	}

	return s.client.GetIdentityFlags(identifier, traits)
}

func (s *featureflag) IsEnabled(ctx context.Context, name string) bool {
	if s.client == nil {
		return false
	}

	flags, err := s.client.GetEnvironmentFlags()
	if err != nil {
		zap.L().Warn("failed to load feature flags", zap.String("flag", name), zap.Error(err))
		return false
	}

	enabled, err := flags.IsFeatureEnabled(name)
	if err != nil {
		return false
	}
	return enabled
}

// Static is a fixed flag set for tests and local runs.
type Static map[string]bool

func (s Static) Features(ctx context.Context) ([]flagsmith.Flag, error) {
	out := make([]flagsmith.Flag, 0, len(s))
	for name, enabled := range s {
		out = append(out, flagsmith.Flag{FeatureName: name, Enabled: enabled})
	}
	return out, nil
}

func (s Static) Flags(ctx context.Context, identifier string, traits ...*flagsmith.Trait) (flagsmith.Flags, error) {
	return flagsmith.Flags{}, nil
}

func (s Static) IsEnabled(ctx context.Context, name string) bool {
	return s[name]
}
