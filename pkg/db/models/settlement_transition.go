package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

// SettlementTransition records an immutable status change of a settlement.
type SettlementTransition struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	SettlementID uuid.UUID               `gorm:"column:settlement_id;type:uuid;not null"`
	FromStatus   *enums.SettlementStatus `gorm:"column:from_status"`
	ToStatus     enums.SettlementStatus  `gorm:"column:to_status;not null"`
	Reason       *string                 `gorm:"column:reason"`
	ActorUserID  *uuid.UUID              `gorm:"column:actor_user_id;type:uuid"`
	Metadata     json.RawMessage         `gorm:"column:metadata;type:jsonb"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (SettlementTransition) TableName() string { return "settlement_transitions" }
