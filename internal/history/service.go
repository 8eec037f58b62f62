package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/ramp-settlement/pkg/db/models"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service records and reads the append-only status history of settlements.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.SettlementTransition, error)
	List(ctx context.Context, settlementID uuid.UUID) ([]Entry, error)
}

type service struct {
	repo Repository
}

// RecordInput captures one status change. From is nil for the initial row.
type RecordInput struct {
	SettlementID uuid.UUID
	From         *enums.SettlementStatus
	To           enums.SettlementStatus
	Reason       string
	ActorUserID  uuid.UUID
	Metadata     map[string]any
}

// Entry is the API view of a transition.
type Entry struct {
	ID          uuid.UUID               `json:"id"`
	FromStatus  *enums.SettlementStatus `json:"from_status,omitempty"`
	ToStatus    enums.SettlementStatus  `json:"to_status"`
	Reason      string                  `json:"reason,omitempty"`
	ActorUserID *uuid.UUID              `json:"actor_user_id,omitempty"`
	Metadata    json.RawMessage         `json:"metadata,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

// NewService wires a history service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("history repository required")
	}
	return &service{repo: repo}, nil
}

// Record writes the transition inside tx when provided so it commits with the status change.
func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.SettlementTransition, error) {
	if input.SettlementID == uuid.Nil {
		return nil, fmt.Errorf("settlement id is required")
	}
	if !input.To.IsValid() {
		return nil, fmt.Errorf("invalid settlement status %q", input.To)
	}
	if input.From != nil && !input.From.IsValid() {
		return nil, fmt.Errorf("invalid settlement status %q", *input.From)
	}

	row := &models.SettlementTransition{
		ID:           uuid.New(),
		SettlementID: input.SettlementID,
		FromStatus:   input.From,
		ToStatus:     input.To,
		CreatedAt:    time.Now().UTC(),
	}
	if input.Reason != "" {
		reason := input.Reason
		row.Reason = &reason
	}
	if input.ActorUserID != uuid.Nil {
		actor := input.ActorUserID
		row.ActorUserID = &actor
	}
	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal transition metadata: %w", err)
		}
		row.Metadata = raw
	}

	if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record settlement transition")
	}
	return row, nil
}

func (s *service) List(ctx context.Context, settlementID uuid.UUID) ([]Entry, error) {
	if settlementID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement id is required")
	}
	rows, err := s.repo.ListBySettlementID(ctx, settlementID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settlement transitions")
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toEntry(row))
	}
	return entries, nil
}

func toEntry(row models.SettlementTransition) Entry {
	entry := Entry{
		ID:          row.ID,
		FromStatus:  row.FromStatus,
		ToStatus:    row.ToStatus,
		ActorUserID: row.ActorUserID,
		Metadata:    row.Metadata,
		CreatedAt:   row.CreatedAt,
	}
	if row.Reason != nil {
		entry.Reason = *row.Reason
	}
	return entry
}
