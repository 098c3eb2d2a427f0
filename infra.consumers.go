package main

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// popRetryDelay is the pause after a failed pop, mostly when redis is unreachable.
const popRetryDelay = time.Second

type Consumer interface {
	Consume(ctx context.Context, qids ...string) error
}

// boltDBConsumer moves the ledger events from the queue to the bolt archive.
type boltDBConsumer struct {
	logger  *zap.Logger
	queue   Queuer
	archive LedgerArchive
}

func NewBoltDBConsumer(logger *zap.Logger, q Queuer, archive LedgerArchive) Consumer {
	return &boltDBConsumer{logger, q, archive}
}

// Consume archives popped events until the context is done.
func (bc *boltDBConsumer) Consume(ctx context.Context, qids ...string) error {
	for {
		qid, event, err := bc.queue.Pop(ctx, qids...)
		if err != nil && ctx.Err() != nil {
			bc.logger.Info("consumer: queue pop call: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		}

		if errors.Is(err, redis.Nil) {
			continue
		}

		if err != nil {
			bc.logger.Error("consumer: error on queue pop call", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(popRetryDelay):
			}
			continue
		}

		switch qid {
		case LedgerQueue:
			if err = bc.archive.Add(ctx, event); err != nil {
				bc.logger.Error("consumer: failed to archive",
					zap.String("event.type", event.Type),
					zap.String("transaction.id", event.TransactionID),
					zap.Error(err),
				)
				bc.requeue(ctx, qid, event)
			}
		default:
			bc.logger.Warn("consumer: received event on unknow queue id", zap.String("qid", qid), zap.Any("event", event))
		}
	}
}

// requeue puts back at the tail of the queue an event the archive refused,
// then pauses before the next pop. Only a failed push loses the event.
func (bc *boltDBConsumer) requeue(ctx context.Context, qid string, event LedgerEvent) {
	if err := bc.queue.Push(context.WithoutCancel(ctx), qid, event); err != nil {
		bc.logger.Error("consumer: failed to requeue, event dropped",
			zap.String("event.type", event.Type),
			zap.String("transaction.id", event.TransactionID),
			zap.Error(err),
		)
	}
	select {
	case <-ctx.Done():
	case <-time.After(popRetryDelay):
	}
}
