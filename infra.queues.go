package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// LedgerQueue is the id of the queue carrying committed ledger events.
const LedgerQueue = "ledger.events"

// Ensure *redisQueue implements Queuer.
var _ Queuer = (*redisQueue)(nil)

// Queuer describes a queue.
type Queuer interface {
	Push(ctx context.Context, qid string, event LedgerEvent) error
	Pop(ctx context.Context, qids ...string) (string, LedgerEvent, error)
}

// redisQueue represents a queue which implements the Queuer interface.
type redisQueue struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisQueue provides a redis list based queue. Pop blocks up to
// timeout waiting for an event, zero meaning forever.
func NewRedisQueue(client *redis.Client, timeout time.Duration) Queuer {
	return &redisQueue{client: client, timeout: timeout}
}

// Push enqueues an event onto the queue identified by qid.
func (q *redisQueue) Push(ctx context.Context, qid string, event LedgerEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, qid, eventBytes).Err()
}

// Pop returns the first dequeued event from the list of queue ids.
func (q *redisQueue) Pop(ctx context.Context, qids ...string) (string, LedgerEvent, error) {
	var event LedgerEvent
	var qid string
	infos, err := q.client.BLPop(ctx, q.timeout, qids...).Result()
	if err != nil {
		return qid, event, err
	}

	if err = json.Unmarshal([]byte(infos[1]), &event); err != nil {
		return qid, event, err
	}
	qid = infos[0]
	return qid, event, nil
}
