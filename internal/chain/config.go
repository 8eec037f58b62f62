package chain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/angelmondragon/ramp-settlement/pkg/config"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

const nativeDecimals = 18

// AssetsFromConfig builds the on-chain asset table. An asset without a token
// contract is treated as the native coin.
func AssetsFromConfig(cfg config.AssetsConfig) ([]Asset, error) {
	assets := make([]Asset, 0, len(enums.AssetTypes()))
	for _, assetType := range enums.AssetTypes() {
		asset := Asset{Type: assetType, Decimals: nativeDecimals}

		if raw, ok := lookup(cfg.Decimals, assetType); ok {
			decimals, err := strconv.ParseInt(raw, 10, 32)
			if err != nil || decimals < 0 {
				return nil, fmt.Errorf("invalid decimals %q for %s", raw, assetType)
			}
			asset.Decimals = int32(decimals)
		}

		if raw, ok := lookup(cfg.TokenContracts, assetType); ok && raw != "" {
			if !common.IsHexAddress(raw) {
				return nil, fmt.Errorf("invalid token contract %q for %s", raw, assetType)
			}
			contract := common.HexToAddress(raw)
			asset.Contract = &contract
		} else if !assetType.IsNative() {
			// no contract configured; only the simulated strategy can deliver it
			continue
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

func lookup(values map[string]string, asset enums.AssetType) (string, bool) {
	for key, value := range values {
		if strings.EqualFold(strings.TrimSpace(key), asset.String()) {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}
