package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

func TestRoutesFromConfig(t *testing.T) {
	routes, err := RoutesFromConfig(map[string]string{"eth": "Real"})
	require.NoError(t, err)
	assert.Equal(t, enums.TransferStrategyReal, routes[enums.AssetETH])
	assert.Equal(t, enums.TransferStrategySimulated, routes[enums.AssetUSDC])
	assert.True(t, UsesReal(routes))

	_, err = RoutesFromConfig(map[string]string{"ETH": "teleport"})
	assert.Error(t, err)

	_, err = RoutesFromConfig(map[string]string{"BTC": "real"})
	assert.Error(t, err)
}
