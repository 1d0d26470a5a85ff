package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Advisory lock seeds keep activity and attendance slots independent even
// for the same worker.
const (
	lockSeedActivity   int64 = 0
	lockSeedAttendance int64 = 1
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"activity.started": {
		Topic:         "activity_events",
		SchemaSubject: "activity_events-value",
	},
	"activity.state_changed": {
		Topic:         "activity_state_changed",
		SchemaSubject: "activity_state_changed-value",
	},
	"attendance.checked_in": {
		Topic:         "attendance_events",
		SchemaSubject: "attendance_events-value",
	},
	"attendance.checked_out": {
		Topic:         "attendance_events",
		SchemaSubject: "attendance_events-value",
	},
}

// insertOutbox records an event row in the caller's transaction so the event
// commits or rolls back with the state change it describes.
func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, partitionKey, eventType string, payload any, occurredAt time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s:%d", aggregateID, eventType, occurredAt.UnixNano())

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		aggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}
