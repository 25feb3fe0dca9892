// Package queue is the Queue Transport (spec §4.2): at-least-once delivery
// of job and task messages over Redis Streams, with a visibility lease via
// consumer groups, delayed enqueue via a companion sorted set, and
// dead-lettering after a configurable max delivery count.
package queue

import (
	"context"
	"time"
)

// Delivery is one at-least-once delivery of a queue message.
type Delivery struct {
	// ID is the Redis stream entry ID; Ack needs it back.
	ID string
	// Payload is the raw JSON the caller enqueued; schema validation is the
	// caller's job (spec §4.2: "payload ... must be schema-validated on
	// receive before any state mutation").
	Payload []byte
	// DeliveryCount is how many times this entry has been claimed,
	// including this delivery. Drives dead-lettering.
	DeliveryCount int64
}

// Queue is one logical queue (`jobs` or `tasks`).
type Queue interface {
	// Enqueue appends a ready-to-consume message.
	Enqueue(ctx context.Context, payload []byte) error
	// EnqueueDelayed schedules a message to become visible after delay.
	// Used by the Retry Manager for backoff.
	EnqueueDelayed(ctx context.Context, payload []byte, delay time.Duration) error
	// Receive blocks up to block for up to count new deliveries for the
	// given consumer name (spec's Executor/Orchestrator worker id).
	Receive(ctx context.Context, consumer string, count int, block time.Duration) ([]Delivery, error)
	// Ack acknowledges successful processing, removing the entry from the
	// consumer group's pending-entries list.
	Ack(ctx context.Context, id string) error
	// ReclaimStale re-delivers entries whose visibility lease (minIdle) has
	// elapsed without an Ack, incrementing their delivery count. Entries
	// past maxDeliveries are moved to the dead-letter stream instead of
	// being returned, and are reported in DeadLettered.
	ReclaimStale(ctx context.Context, consumer string, minIdle time.Duration, count int) (reclaimed []Delivery, deadLettered []Delivery, err error)
	// PromoteDue moves delayed entries whose ready_at has passed into the
	// live stream. Call periodically (e.g. from the Janitor or a
	// dedicated goroutine).
	PromoteDue(ctx context.Context) (int, error)
	// Close releases the underlying client resources.
	Close() error
}
