package quote

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ramp-settlement/pkg/config"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

// ConfigFromSettings builds a calculator config from environment settings.
func ConfigFromSettings(assets config.AssetsConfig, pricing config.PricingConfig, gateway config.GatewayConfig) (Config, error) {
	onRates, err := parseRates(assets.OnRampRates)
	if err != nil {
		return Config{}, fmt.Errorf("on-ramp rates: %w", err)
	}
	offRates, err := parseRates(assets.OffRampRates)
	if err != nil {
		return Config{}, fmt.Errorf("off-ramp rates: %w", err)
	}

	p := &decimalParser{}
	cfg := Config{
		OnRampRates:  onRates,
		OffRampRates: offRates,
		OnRampLimits: Limits{
			Min: p.parse("on-ramp min fiat", pricing.OnRampMinFiat),
			Max: p.parse("on-ramp max fiat", pricing.OnRampMaxFiat),
		},
		OffRampLimits: Limits{
			Min: p.parse("off-ramp min token", pricing.OffRampMinToken),
			Max: p.parse("off-ramp max token", pricing.OffRampMaxToken),
		},
		OnRampFee: FeePolicy{
			Rate: p.parse("on-ramp fee rate", pricing.OnRampFeeRate),
			Min:  p.parse("on-ramp fee min", pricing.OnRampFeeMin),
			Max:  p.parse("on-ramp fee max", pricing.OnRampFeeMax),
		},
		OffRampFee: FeePolicy{
			Rate: p.parse("off-ramp fee rate", pricing.OffRampFeeRate),
			Min:  p.parse("off-ramp fee min", pricing.OffRampFeeMin),
			Max:  p.parse("off-ramp fee max", pricing.OffRampFeeMax),
		},
		GatewayFeeRate: p.parse("gateway fee rate", gateway.FeeRate),
		MinNetPayout:   p.parse("off-ramp min net payout", pricing.OffRampMinNetPayout),
	}
	if p.err != nil {
		return Config{}, p.err
	}
	return cfg, nil
}

func parseRates(raw map[string]string) (map[enums.AssetType]decimal.Decimal, error) {
	out := make(map[enums.AssetType]decimal.Decimal, len(raw))
	for key, value := range raw {
		asset, err := enums.ParseAssetType(key)
		if err != nil {
			return nil, err
		}
		rate, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("rate for %s: %w", asset, err)
		}
		out[asset] = rate
	}
	return out, nil
}

type decimalParser struct {
	err error
}

func (p *decimalParser) parse(name, value string) decimal.Decimal {
	if p.err != nil {
		return decimal.Zero
	}
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", name, err)
		return decimal.Zero
	}
	return d
}
