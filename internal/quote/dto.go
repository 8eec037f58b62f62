package quote

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

// OnRampQuote is the price of buying TokenAmount for FiatAmount. Fees are
// charged on top, so the buyer pays TotalPayable.
type OnRampQuote struct {
	AssetType    enums.AssetType `json:"asset_type"`
	FiatAmount   decimal.Decimal `json:"fiat_amount"`
	TokenAmount  decimal.Decimal `json:"token_amount"`
	Rate         decimal.Decimal `json:"rate"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
	GatewayFee   decimal.Decimal `json:"gateway_fee"`
	TotalPayable decimal.Decimal `json:"total_payable"`
}

// OffRampQuote is the payout for selling TokenAmount.
type OffRampQuote struct {
	AssetType   enums.AssetType `json:"asset_type"`
	TokenAmount decimal.Decimal `json:"token_amount"`
	Rate        decimal.Decimal `json:"rate"`
	GrossFiat   decimal.Decimal `json:"gross_fiat"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	NetPayout   decimal.Decimal `json:"net_payout"`
}

type LimitsView struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

type FeeView struct {
	Rate string `json:"rate"`
	Min  string `json:"min"`
	Max  string `json:"max"`
}

// RateTable is the public view of configured rates, limits and fees.
type RateTable struct {
	OnRamp         map[string]string `json:"on_ramp"`
	OffRamp        map[string]string `json:"off_ramp"`
	OnRampLimits   LimitsView        `json:"on_ramp_limits"`
	OffRampLimits  LimitsView        `json:"off_ramp_limits"`
	OnRampFee      FeeView           `json:"on_ramp_fee"`
	OffRampFee     FeeView           `json:"off_ramp_fee"`
	GatewayFeeRate string            `json:"gateway_fee_rate"`
	MinNetPayout   string            `json:"min_net_payout"`
}
