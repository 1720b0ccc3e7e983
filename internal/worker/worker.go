package worker

import (
	"context"
	"log"
	"time"

	"delivery-service/internal/broker"
	"delivery-service/internal/service"
	"delivery-service/internal/util"
)

// FulfillmentWorker consumes payment events and drives order settlement
type FulfillmentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewFulfillmentWorker creates a new fulfillment worker
func NewFulfillmentWorker(
	consumer *broker.Consumer,
	fulfillment *service.FulfillmentService,
) *FulfillmentWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentSuccess(fulfillment.HandlePaymentSuccess)
	eventHandler.OnPaymentFailed(fulfillment.HandlePaymentFailed)

	return &FulfillmentWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *FulfillmentWorker) Start(ctx context.Context) error {
	log.Println("Starting fulfillment worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *FulfillmentWorker) Stop() error {
	log.Println("Stopping fulfillment worker...")
	return w.consumer.Close()
}

type sweeperStore interface {
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

type sweepLocker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// TokenSweeper periodically deletes expired download token rows. The
// Redis lock keeps a single instance sweeping at a time. Token validity
// never depends on the sweep; expiry is checked at resolution.
type TokenSweeper struct {
	store    sweeperStore
	locks    sweepLocker
	interval time.Duration
}

// NewTokenSweeper creates a new token sweeper
func NewTokenSweeper(store sweeperStore, locks sweepLocker, interval time.Duration) *TokenSweeper {
	return &TokenSweeper{
		store:    store,
		locks:    locks,
		interval: interval,
	}
}

// Start runs the sweep loop until the context is cancelled
func (ts *TokenSweeper) Start(ctx context.Context) error {
	log.Printf("Starting token sweeper (interval %s)...", ts.interval)

	ticker := time.NewTicker(ts.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Token sweeper stopping...")
			return ctx.Err()
		case <-ticker.C:
			ts.sweep(ctx)
		}
	}
}

func (ts *TokenSweeper) sweep(ctx context.Context) {
	acquired, err := ts.locks.AcquireLock(ctx, "token-sweep", ts.interval)
	if err != nil {
		log.Printf("Token sweep lock error: %v", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := ts.locks.ReleaseLock(ctx, "token-sweep"); err != nil {
			log.Printf("Token sweep unlock error: %v", err)
		}
	}()

	deleted, err := ts.store.DeleteExpiredTokens(ctx, time.Now())
	if err != nil {
		log.Printf("Token sweep failed: %v", err)
		return
	}

	if deleted > 0 {
		util.ExpiredTokensSweptTotal.Add(float64(deleted))
		log.Printf("Token sweep deleted %d expired tokens", deleted)
	}
}
