package migrate

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/ramp-settlement/pkg/db"
	"github.com/angelmondragon/ramp-settlement/pkg/db/models"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

func withdrawalRow(depositHash *string) *models.Settlement {
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	return &models.Settlement{
		ID:               uuid.New(),
		OrderReference:   "offramp_" + uuid.NewString(),
		OwnerID:          uuid.New(),
		Direction:        enums.DirectionOffRamp,
		AssetType:        enums.AssetETH,
		WalletAddress:    "0x1111111111111111111111111111111111111111",
		Currency:         enums.CurrencyINR,
		Status:           enums.SettlementStatusDepositVerified,
		TransferStrategy: enums.TransferStrategyReal,
		TransferStatus:   enums.TransferStatusPending,
		DepositTxHash:    depositHash,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestAutoMigrateModelsEnforcesUniqueDepositHash(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:automigrate_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrateModels(conn))

	require.NoError(t, conn.Create(withdrawalRow(nil)).Error)
	require.NoError(t, conn.Create(withdrawalRow(nil)).Error, "rows without a deposit hash never collide")

	hash := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	require.NoError(t, conn.Create(withdrawalRow(&hash)).Error)
	err = conn.Create(withdrawalRow(&hash)).Error
	require.Error(t, err)
	require.True(t, db.IsUniqueViolation(err, ""), "got %v", err)
}
