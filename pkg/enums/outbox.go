package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateSettlement OutboxAggregateType = "settlement"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateSettlement,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventSettlementCreated   OutboxEventType = "settlement_created"
	EventPaymentVerified     OutboxEventType = "payment_verified"
	EventPaymentRejected     OutboxEventType = "payment_rejected"
	EventTransferCompleted   OutboxEventType = "transfer_completed"
	EventTransferFailed      OutboxEventType = "transfer_failed"
	EventTransferRetried     OutboxEventType = "transfer_retried"
	EventSettlementCancelled OutboxEventType = "settlement_cancelled"
	EventDepositVerified     OutboxEventType = "deposit_verified"
	EventPayoutInitiated     OutboxEventType = "payout_initiated"
	EventPayoutCompleted     OutboxEventType = "payout_completed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventSettlementCreated,
	EventPaymentVerified,
	EventPaymentRejected,
	EventTransferCompleted,
	EventTransferFailed,
	EventTransferRetried,
	EventSettlementCancelled,
	EventDepositVerified,
	EventPayoutInitiated,
	EventPayoutCompleted,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxEventTypes returns every known event type.
func OutboxEventTypes() []OutboxEventType {
	out := make([]OutboxEventType, len(validOutboxEventTypes))
	copy(out, validOutboxEventTypes)
	return out
}
