package enums

import (
	"fmt"
	"strings"
)

// AssetType identifies a ledger asset the service can settle.
type AssetType string

const (
	AssetETH  AssetType = "ETH"
	AssetUSDC AssetType = "USDC"
)

var validAssetTypes = []AssetType{
	AssetETH,
	AssetUSDC,
}

// String implements fmt.Stringer.
func (a AssetType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AssetType.
func (a AssetType) IsValid() bool {
	for _, candidate := range validAssetTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// IsNative reports whether transfers move the chain's native coin rather than a token contract.
func (a AssetType) IsNative() bool {
	return a == AssetETH
}

// ParseAssetType converts raw input into an AssetType. Matching is case-insensitive.
func ParseAssetType(value string) (AssetType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validAssetTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid asset type %q", value)
}

// AssetTypes returns every supported asset.
func AssetTypes() []AssetType {
	out := make([]AssetType, len(validAssetTypes))
	copy(out, validAssetTypes)
	return out
}
