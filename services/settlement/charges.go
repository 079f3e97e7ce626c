package settlement

import (
	"fmt"

	"medvive-settlement/pkg/celengine"
	"medvive-settlement/pkg/config"
)

const DefaultPlatformPercent int64 = 30

type Split struct {
	Amount        int64 `json:"amount"`
	PlatformFee   int64 `json:"platform_fee"`
	ProviderShare int64 `json:"provider_share"`
}

// Charges computes the platform fee of a consultation amount. A configured
// expression over `amount` takes precedence over the percentage.
type Charges struct {
	percent int64
	expr    *celengine.Program
}

func NewCharges(cfg *config.Config) (*Charges, error) {
	c := &Charges{percent: DefaultPlatformPercent}
	if cfg == nil {
		return c, nil
	}
	if cfg.Fees.PlatformPercent > 0 {
		c.percent = cfg.Fees.PlatformPercent
	}
	if cfg.Fees.PlatformFeeExpr != "" {
		prg, err := celengine.Compile(cfg.Fees.PlatformFeeExpr, attrs(0))
		if err != nil {
			return nil, fmt.Errorf("invalid platform fee expression: %w", err)
		}
		c.expr = prg
	}
	return c, nil
}

func attrs(amount int64) map[string]any {
	return map[string]any{"amount": amount}
}

func (c *Charges) Split(amount int64) (Split, error) {
	if amount < 0 {
		return Split{}, fmt.Errorf("amount must not be negative")
	}

	fee := amount * c.percent / 100
	if c.expr != nil {
		var err error
		fee, err = c.expr.Int(attrs(amount))
		if err != nil {
			return Split{}, err
		}
		if fee < 0 || fee > amount {
			return Split{}, fmt.Errorf("platform fee %d outside [0, %d]", fee, amount)
		}
	}

	return Split{Amount: amount, PlatformFee: fee, ProviderShare: amount - fee}, nil
}
