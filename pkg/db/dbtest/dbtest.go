// Package dbtest opens throwaway sqlite databases with the settlement schema for package tests.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Amounts are TEXT so decimals round-trip without float affinity.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS settlements (
  id TEXT PRIMARY KEY,
  order_reference TEXT NOT NULL UNIQUE,
  owner_id TEXT NOT NULL,
  direction TEXT NOT NULL,
  asset_type TEXT NOT NULL,
  wallet_address TEXT NOT NULL,
  currency TEXT NOT NULL,
  fiat_amount TEXT NOT NULL,
  token_amount TEXT NOT NULL,
  conversion_rate TEXT NOT NULL,
  gateway_fee TEXT NOT NULL,
  network_fee TEXT NOT NULL,
  platform_fee TEXT NOT NULL,
  total_payable TEXT NOT NULL,
  net_payout TEXT NOT NULL,
  status TEXT NOT NULL,
  payment_status TEXT NOT NULL,
  gateway_order_id TEXT,
  payment_proof_id TEXT,
  proof_verified_at DATETIME,
  transfer_strategy TEXT NOT NULL,
  transfer_status TEXT NOT NULL,
  transfer_hash TEXT,
  explorer_reference TEXT,
  simulated INTEGER NOT NULL DEFAULT 0,
  claim_token TEXT,
  claimed_at DATETIME,
  settled_at DATETIME,
  failure_code TEXT,
  failure_reason TEXT,
  failed_at DATETIME,
  retry_count INTEGER NOT NULL DEFAULT 0,
  retry_attempt INTEGER NOT NULL DEFAULT 0,
  retried_at DATETIME,
  bank_account_ref TEXT,
  deposit_tx_hash TEXT,
  deposit_method TEXT,
  deposit_verified_at DATETIME,
  payout_reference TEXT,
  payout_due_at DATETIME,
  payout_initiated_at DATETIME,
  cancelled_at DATETIME,
  metadata TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_settlements_deposit_tx_hash ON settlements (deposit_tx_hash) WHERE deposit_tx_hash IS NOT NULL;`,
	`CREATE TABLE IF NOT EXISTS settlement_transitions (
  id TEXT PRIMARY KEY,
  settlement_id TEXT NOT NULL,
  from_status TEXT,
  to_status TEXT NOT NULL,
  reason TEXT,
  actor_user_id TEXT,
  metadata TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns an isolated in-memory database with every table created.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:ramp_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// a single connection serializes writers the way row locks would on postgres
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}
