package quote

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
)

// fiatPlaces is the precision fees and payouts are rounded to.
const fiatPlaces = 2

// FeePolicy is a proportional fee clamped to [Min, Max].
type FeePolicy struct {
	Rate decimal.Decimal
	Min  decimal.Decimal
	Max  decimal.Decimal
}

// Apply returns clamp(gross*Rate, Min, Max) rounded to fiat precision.
func (p FeePolicy) Apply(gross decimal.Decimal) decimal.Decimal {
	fee := gross.Mul(p.Rate)
	if fee.LessThan(p.Min) {
		fee = p.Min
	}
	if !p.Max.IsZero() && fee.GreaterThan(p.Max) {
		fee = p.Max
	}
	return fee.Round(fiatPlaces)
}

// Limits bounds the accepted input amount for one direction.
type Limits struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Config carries the rate table and pricing policy. Rates are configured
// constants: on-ramp rates are tokens per fiat unit, off-ramp rates are fiat
// per token.
type Config struct {
	OnRampRates    map[enums.AssetType]decimal.Decimal
	OffRampRates   map[enums.AssetType]decimal.Decimal
	OnRampLimits   Limits
	OffRampLimits  Limits
	OnRampFee      FeePolicy
	OffRampFee     FeePolicy
	GatewayFeeRate decimal.Decimal
	MinNetPayout   decimal.Decimal
}

// Calculator prices settlements. It has no side effects.
type Calculator struct {
	cfg Config
}

// NewCalculator validates cfg and returns a calculator.
func NewCalculator(cfg Config) (*Calculator, error) {
	if len(cfg.OnRampRates) == 0 && len(cfg.OffRampRates) == 0 {
		return nil, fmt.Errorf("at least one rate is required")
	}
	for asset, rate := range cfg.OnRampRates {
		if !asset.IsValid() {
			return nil, fmt.Errorf("unknown on-ramp asset %q", asset)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("on-ramp rate for %s must be positive", asset)
		}
	}
	for asset, rate := range cfg.OffRampRates {
		if !asset.IsValid() {
			return nil, fmt.Errorf("unknown off-ramp asset %q", asset)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("off-ramp rate for %s must be positive", asset)
		}
	}
	if cfg.OnRampFee.Max.IsPositive() && cfg.OnRampFee.Min.GreaterThan(cfg.OnRampFee.Max) {
		return nil, fmt.Errorf("on-ramp fee min exceeds max")
	}
	if cfg.OffRampFee.Max.IsPositive() && cfg.OffRampFee.Min.GreaterThan(cfg.OffRampFee.Max) {
		return nil, fmt.Errorf("off-ramp fee min exceeds max")
	}
	return &Calculator{cfg: cfg}, nil
}

// OnRamp prices a fiat -> token purchase.
func (c *Calculator) OnRamp(asset enums.AssetType, fiat decimal.Decimal) (OnRampQuote, error) {
	rate, ok := c.cfg.OnRampRates[asset]
	if !ok {
		return OnRampQuote{}, unsupportedAsset(asset, enums.DirectionOnRamp)
	}
	if err := checkLimits(fiat, c.cfg.OnRampLimits, "fiat_amount"); err != nil {
		return OnRampQuote{}, err
	}

	platformFee := c.cfg.OnRampFee.Apply(fiat)
	gatewayFee := fiat.Mul(c.cfg.GatewayFeeRate).Round(fiatPlaces)

	return OnRampQuote{
		AssetType:    asset,
		FiatAmount:   fiat,
		TokenAmount:  fiat.Mul(rate),
		Rate:         rate,
		PlatformFee:  platformFee,
		GatewayFee:   gatewayFee,
		TotalPayable: fiat.Add(platformFee).Add(gatewayFee),
	}, nil
}

// OffRamp prices a token -> fiat withdrawal.
func (c *Calculator) OffRamp(asset enums.AssetType, token decimal.Decimal) (OffRampQuote, error) {
	rate, ok := c.cfg.OffRampRates[asset]
	if !ok {
		return OffRampQuote{}, unsupportedAsset(asset, enums.DirectionOffRamp)
	}
	if err := checkLimits(token, c.cfg.OffRampLimits, "token_amount"); err != nil {
		return OffRampQuote{}, err
	}

	gross := token.Mul(rate)
	fee := c.cfg.OffRampFee.Apply(gross)
	net := gross.Sub(fee)
	if net.LessThan(c.cfg.MinNetPayout) {
		return OffRampQuote{}, pkgerrors.New(pkgerrors.CodeValidation, "net payout below minimum").
			WithDetails(map[string]any{
				"net_payout":     net.StringFixed(fiatPlaces),
				"minimum_payout": c.cfg.MinNetPayout.String(),
			})
	}

	return OffRampQuote{
		AssetType:   asset,
		TokenAmount: token,
		Rate:        rate,
		GrossFiat:   gross,
		PlatformFee: fee,
		NetPayout:   net,
	}, nil
}

// OnRampRate returns the configured on-ramp rate for asset.
func (c *Calculator) OnRampRate(asset enums.AssetType) (decimal.Decimal, bool) {
	rate, ok := c.cfg.OnRampRates[asset]
	return rate, ok
}

// Rates describes the configured table for display.
func (c *Calculator) Rates() RateTable {
	table := RateTable{
		OnRamp:  map[string]string{},
		OffRamp: map[string]string{},
		OnRampLimits: LimitsView{
			Min: c.cfg.OnRampLimits.Min.String(),
			Max: c.cfg.OnRampLimits.Max.String(),
		},
		OffRampLimits: LimitsView{
			Min: c.cfg.OffRampLimits.Min.String(),
			Max: c.cfg.OffRampLimits.Max.String(),
		},
		OnRampFee:      feeView(c.cfg.OnRampFee),
		OffRampFee:     feeView(c.cfg.OffRampFee),
		GatewayFeeRate: c.cfg.GatewayFeeRate.String(),
		MinNetPayout:   c.cfg.MinNetPayout.String(),
	}
	for asset, rate := range c.cfg.OnRampRates {
		table.OnRamp[asset.String()] = rate.String()
	}
	for asset, rate := range c.cfg.OffRampRates {
		table.OffRamp[asset.String()] = rate.String()
	}
	return table
}

func checkLimits(amount decimal.Decimal, limits Limits, field string) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, field+" must be positive")
	}
	if amount.LessThan(limits.Min) {
		return pkgerrors.New(pkgerrors.CodeValidation, field+" below minimum").
			WithDetails(map[string]any{field: amount.String(), "minimum": limits.Min.String()})
	}
	if limits.Max.IsPositive() && amount.GreaterThan(limits.Max) {
		return pkgerrors.New(pkgerrors.CodeValidation, field+" above maximum").
			WithDetails(map[string]any{field: amount.String(), "maximum": limits.Max.String()})
	}
	return nil
}

func unsupportedAsset(asset enums.AssetType, direction enums.SettlementDirection) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "unsupported asset").
		WithDetails(map[string]any{"asset_type": asset.String(), "direction": direction.String()})
}

func feeView(p FeePolicy) FeeView {
	return FeeView{Rate: p.Rate.String(), Min: p.Min.String(), Max: p.Max.String()}
}
