package transfer

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

// RoutesFromConfig parses "ASSET:strategy" settings. Assets left out default to
// the simulated strategy.
func RoutesFromConfig(raw map[string]string) (map[enums.AssetType]enums.TransferStrategy, error) {
	routes := make(map[enums.AssetType]enums.TransferStrategy, len(enums.AssetTypes()))
	for _, asset := range enums.AssetTypes() {
		routes[asset] = enums.TransferStrategySimulated
	}
	for key, value := range raw {
		asset, err := enums.ParseAssetType(key)
		if err != nil {
			return nil, err
		}
		strategy, err := enums.ParseTransferStrategy(strings.ToLower(strings.TrimSpace(value)))
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", asset, err)
		}
		routes[asset] = strategy
	}
	return routes, nil
}

// UsesReal reports whether any asset is routed to the real strategy.
func UsesReal(routes map[enums.AssetType]enums.TransferStrategy) bool {
	for _, strategy := range routes {
		if strategy == enums.TransferStrategyReal {
			return true
		}
	}
	return false
}
