package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/rmhgeo/jobengine/internal/platform/logger"
)

const (
	fieldPayload   = "payload"
	delayedSep     = "\x00"
	defaultMaxLen  = 100_000 // approximate stream trim target
	groupStartID   = "0"
	groupReadStart = ">"
)

// RedisQueue is a Queue backed by a Redis stream + consumer group for live
// delivery, a sorted set for delayed entries, and a second stream for
// dead-lettered ones.
type RedisQueue struct {
	rdb  *goredis.Client
	log  *logger.Logger
	name string

	streamKey    string
	delayedKey   string
	deadKey      string
	group        string
	maxDeliveries int64
}

// NewRedisQueue creates (or attaches to) the consumer group backing the
// named logical queue. name is typically "jobs" or "tasks" per spec §4.2.
func NewRedisQueue(ctx context.Context, rdb *goredis.Client, baseLog *logger.Logger, name string, maxDeliveries int) (*RedisQueue, error) {
	if rdb == nil {
		return nil, fmt.Errorf("queue %s: redis client required", name)
	}
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	q := &RedisQueue{
		rdb:           rdb,
		log:           baseLog.With("component", "Queue", "queue", name),
		name:          name,
		streamKey:     "jobengine:" + name,
		delayedKey:    "jobengine:" + name + ":delayed",
		deadKey:       "jobengine:" + name + ":dead",
		group:         "jobengine:" + name + ":workers",
		maxDeliveries: int64(maxDeliveries),
	}

	err := rdb.XGroupCreateMkStream(ctx, q.streamKey, q.group, groupStartID).Err()
	if err != nil && !isBusyGroup(err) {
		return nil, fmt.Errorf("queue %s: create consumer group: %w", name, err)
	}
	return q, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

func (q *RedisQueue) Enqueue(ctx context.Context, payload []byte) error {
	return q.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: q.streamKey,
		MaxLen: defaultMaxLen,
		Approx: true,
		Values: map[string]any{fieldPayload: payload},
	}).Err()
}

func (q *RedisQueue) EnqueueDelayed(ctx context.Context, payload []byte, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, payload)
	}
	member := uuid.NewString() + delayedSep + string(payload)
	score := float64(time.Now().Add(delay).Unix())
	return q.rdb.ZAdd(ctx, q.delayedKey, goredis.Z{Score: score, Member: member}).Err()
}

func (q *RedisQueue) Receive(ctx context.Context, consumer string, count int, block time.Duration) ([]Delivery, error) {
	res, err := q.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.streamKey, groupReadStart},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue %s: receive: %w", q.name, err)
	}

	var out []Delivery
	for _, stream := range res {
		for _, msg := range stream.Messages {
			payload, _ := msg.Values[fieldPayload].(string)
			out = append(out, Delivery{ID: msg.ID, Payload: []byte(payload), DeliveryCount: 1})
		}
	}
	return out, nil
}

func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	return q.rdb.XAck(ctx, q.streamKey, q.group, id).Err()
}

func (q *RedisQueue) ReclaimStale(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]Delivery, []Delivery, error) {
	pending, err := q.rdb.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: q.streamKey,
		Group:  q.group,
		Start:  "-",
		End:    "+",
		Count:  int64(count),
		Idle:   minIdle,
	}).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("queue %s: list pending: %w", q.name, err)
	}

	var reclaimed, deadLettered []Delivery
	for _, entry := range pending {
		if entry.RetryCount >= q.maxDeliveries {
			dl, err := q.deadLetter(ctx, entry.ID)
			if err != nil {
				q.log.Warn("dead-letter failed", "id", entry.ID, "error", err)
				continue
			}
			if dl != nil {
				deadLettered = append(deadLettered, *dl)
			}
			continue
		}

		claimed, err := q.rdb.XClaim(ctx, &goredis.XClaimArgs{
			Stream:   q.streamKey,
			Group:    q.group,
			Consumer: consumer,
			MinIdle:  minIdle,
			Messages: []string{entry.ID},
		}).Result()
		if err != nil {
			q.log.Warn("reclaim failed", "id", entry.ID, "error", err)
			continue
		}
		for _, msg := range claimed {
			payload, _ := msg.Values[fieldPayload].(string)
			reclaimed = append(reclaimed, Delivery{
				ID:            msg.ID,
				Payload:       []byte(payload),
				DeliveryCount: entry.RetryCount + 1,
			})
		}
	}
	return reclaimed, deadLettered, nil
}

// deadLetter moves the pending entry's payload to the dead stream and acks
// it off the live stream's pending-entries list.
func (q *RedisQueue) deadLetter(ctx context.Context, id string) (*Delivery, error) {
	msgs, err := q.rdb.XRange(ctx, q.streamKey, id, id).Result()
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		// Entry already trimmed from the stream; just drop the pending ref.
		return nil, q.rdb.XAck(ctx, q.streamKey, q.group, id).Err()
	}
	payload, _ := msgs[0].Values[fieldPayload].(string)

	if err := q.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: q.deadKey,
		Values: map[string]any{fieldPayload: payload},
	}).Err(); err != nil {
		return nil, err
	}
	if err := q.rdb.XAck(ctx, q.streamKey, q.group, id).Err(); err != nil {
		return nil, err
	}
	return &Delivery{ID: id, Payload: []byte(payload)}, nil
}

func (q *RedisQueue) PromoteDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	members, err := q.rdb.ZRangeByScore(ctx, q.delayedKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("queue %s: scan delayed: %w", q.name, err)
	}

	promoted := 0
	for _, member := range members {
		removed, err := q.rdb.ZRem(ctx, q.delayedKey, member).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			// another promoter already claimed it
			continue
		}
		idx := strings.Index(member, delayedSep)
		if idx < 0 {
			q.log.Warn("malformed delayed entry, dropping", "member", member)
			continue
		}
		payload := member[idx+len(delayedSep):]
		if err := q.rdb.XAdd(ctx, &goredis.XAddArgs{
			Stream: q.streamKey,
			Values: map[string]any{fieldPayload: payload},
		}).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

func (q *RedisQueue) Close() error {
	return nil // client lifecycle is owned by whoever constructed the *goredis.Client
}
