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

// OrderService ingests checkouts into the order ledger. Orders start
// PENDING; the fulfillment worker flips them when payment events arrive.
type OrderService struct {
	store          *store.Store
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store *store.Store, eventPublisher *broker.EventPublisher) *OrderService {
	return &OrderService{
		store:          store,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// CreateOrderRequest represents a checkout submission
type CreateOrderRequest struct {
	StoreID        int64              `json:"store_id" binding:"required"`
	BuyerEmail     string             `json:"buyer_email" binding:"required,email"`
	Items          []OrderItemRequest `json:"items" binding:"required,min=1"`
	PaymentRef     string             `json:"payment_ref,omitempty"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
}

// OrderItemRequest references one purchased product
type OrderItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

// CreateOrder creates a PENDING order with its line items
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	existingOrder, err := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existingOrder != nil {
		s.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("order_id", existingOrder.ID))
		return &CreateOrderResponse{
			OrderID: existingOrder.ID,
			Status:  existingOrder.Status,
		}, nil
	}

	products, err := s.validateOrderItems(ctx, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	order := &models.Order{
		StoreID:        req.StoreID,
		BuyerEmail:     req.BuyerEmail,
		TotalAmount:    s.calculateTotal(req.Items, products),
		Status:         models.OrderStatusPending,
		PaymentRef:     req.PaymentRef,
		IdempotencyKey: req.IdempotencyKey,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created", zap.Int64("order_id", order.ID))

	orderItems := make([]models.OrderItemData, 0, len(req.Items))
	for _, item := range req.Items {
		product := products[item.ProductID]
		orderItem := &models.OrderItem{
			OrderID:   order.ID,
			ProductID: item.ProductID,
			UnitPrice: product.Price,
		}

		if err := s.store.CreateOrderItem(ctx, orderItem); err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}

		orderItems = append(orderItems, models.OrderItemData{
			ProductID: item.ProductID,
			UnitPrice: product.Price,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		StoreID:     order.StoreID,
		BuyerEmail:  order.BuyerEmail,
		TotalAmount: order.TotalAmount,
		Items:       orderItems,
	}

	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return &CreateOrderResponse{
		OrderID: order.ID,
		Status:  order.Status,
	}, nil
}

// validateOrderItems validates that all products exist
func (s *OrderService) validateOrderItems(ctx context.Context, items []OrderItemRequest) (map[int64]*models.Product, error) {
	productIDs := make([]int64, len(items))
	for i, item := range items {
		productIDs[i] = item.ProductID
	}

	products, err := s.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	productMap := make(map[int64]*models.Product)
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	for _, item := range items {
		if productMap[item.ProductID] == nil {
			return nil, fmt.Errorf("product %d: %w", item.ProductID, store.ErrNotFound)
		}
	}

	return productMap, nil
}

// calculateTotal sums the prices of purchased products
func (s *OrderService) calculateTotal(items []OrderItemRequest, products map[int64]*models.Product) int64 {
	var total int64
	for _, item := range items {
		total += products[item.ProductID].Price
	}
	return total
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}
