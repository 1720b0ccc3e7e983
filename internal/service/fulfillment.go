package service

import (
	"context"
	"fmt"
	"time"

	"delivery-service/internal/broker"
	"delivery-service/internal/models"
	"delivery-service/internal/store"
	"delivery-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FulfillmentService reacts to payment events: it settles the order
// status and mints the download token for completed purchases.
type FulfillmentService struct {
	store          *store.Store
	tokens         *TokenService
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewFulfillmentService creates a new fulfillment service
func NewFulfillmentService(
	store *store.Store,
	tokens *TokenService,
	eventPublisher *broker.EventPublisher,
) *FulfillmentService {
	return &FulfillmentService{
		store:          store,
		tokens:         tokens,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// HandlePaymentSuccess flips the order to COMPLETED and issues its
// download token. Replays of the same event are no-ops.
func (fs *FulfillmentService) HandlePaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.HandlePaymentSuccess")
	defer span.End()

	processed, err := fs.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		fs.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	fs.logger.Info("Handling payment success",
		zap.Int64("order_id", event.OrderID),
		zap.String("payment_ref", event.PaymentRef))

	order, err := fs.store.GetOrderByID(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}

	if err := fs.store.SetOrderPaymentRef(ctx, order.ID, event.PaymentRef); err != nil {
		fs.logger.Error("Failed to record payment ref", zap.Error(err))
	}

	if err := fs.store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCompleted); err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	util.OrdersCompletedTotal.Inc()

	if _, err := fs.tokens.IssueToken(ctx, order.ID); err != nil {
		// The token can still be re-requested through the API, so a
		// failed auto-issue does not fail the settlement.
		fs.logger.Error("Failed to auto-issue download token",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}

	completedEvent := &models.OrderCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCompleted,
			Timestamp: time.Now(),
		},
		OrderID:    order.ID,
		BuyerEmail: order.BuyerEmail,
		PaymentRef: event.PaymentRef,
	}

	if err := fs.eventPublisher.PublishOrderCompleted(ctx, completedEvent); err != nil {
		fs.logger.Error("Failed to publish OrderCompleted event", zap.Error(err))
	}

	if err := fs.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		fs.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	fs.logger.Info("Order completed", zap.Int64("order_id", order.ID))
	return nil
}

// HandlePaymentFailed flips the order to FAILED
func (fs *FulfillmentService) HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.HandlePaymentFailed")
	defer span.End()

	processed, err := fs.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		fs.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	fs.logger.Warn("Handling payment failure",
		zap.Int64("order_id", event.OrderID),
		zap.String("reason", event.Reason))

	if err := fs.store.UpdateOrderStatus(ctx, event.OrderID, models.OrderStatusFailed); err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	util.OrdersFailedTotal.WithLabelValues("payment_failed").Inc()

	if err := fs.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		fs.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	return nil
}
