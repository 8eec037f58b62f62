package enums

import "fmt"

// SettlementDirection distinguishes fiat->token from token->fiat flows.
type SettlementDirection string

const (
	DirectionOnRamp  SettlementDirection = "on_ramp"
	DirectionOffRamp SettlementDirection = "off_ramp"
)

var validSettlementDirections = []SettlementDirection{
	DirectionOnRamp,
	DirectionOffRamp,
}

// String implements fmt.Stringer.
func (d SettlementDirection) String() string {
	return string(d)
}

// IsValid reports whether the value is a known SettlementDirection.
func (d SettlementDirection) IsValid() bool {
	for _, candidate := range validSettlementDirections {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseSettlementDirection converts raw input into a SettlementDirection.
func ParseSettlementDirection(value string) (SettlementDirection, error) {
	for _, candidate := range validSettlementDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid settlement direction %q", value)
}
