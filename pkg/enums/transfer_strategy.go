package enums

import "fmt"

// TransferStrategy selects how an asset is delivered on-ramp.
type TransferStrategy string

const (
	TransferStrategyReal      TransferStrategy = "real"
	TransferStrategySimulated TransferStrategy = "simulated"
)

var validTransferStrategies = []TransferStrategy{
	TransferStrategyReal,
	TransferStrategySimulated,
}

// IsValid reports whether the value is a known TransferStrategy.
func (t TransferStrategy) IsValid() bool {
	for _, candidate := range validTransferStrategies {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransferStrategy converts raw input into a TransferStrategy.
func ParseTransferStrategy(value string) (TransferStrategy, error) {
	for _, candidate := range validTransferStrategies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transfer strategy %q", value)
}
