// Package outbox stores domain events in the same transaction as the change
// that produced them and relays them to Kafka.
package outbox

import (
	"encoding/json"
	"fmt"
)

const (
	EventWeeklyUpdated          = "availability.weekly.updated.v1"
	EventOverrideUpdated        = "availability.override.updated.v1"
	EventSettingsUpdated        = "availability.settings.updated.v1"
	EventBookingCreated         = "booking.created.v1"
	EventBookingStatusChanged   = "booking.status.changed.v1"
	EventBookingPaymentOrphaned = "booking.payment_orphaned.v1"
	EventServiceCatalogChanged  = "service.catalog.changed.v1"
)

const (
	AggregateAvailability = "availability"
	AggregateBooking      = "booking"
	AggregateService      = "service"
)

// Event is the envelope written to outbox_events. The Kafka topic is the
// event type and the message key is the owner, so one owner's events stay ordered.
type Event struct {
	AggregateType string
	AggregateID   string
	OwnerID       string
	EventType     string
	Payload       []byte
}

// NewEvent marshals payload to JSON.
func NewEvent(eventType, aggregateType, aggregateID, ownerID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OwnerID:       ownerID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
