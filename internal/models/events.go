package models

import "time"

// Event types
const (
	EventTypeOrderCreated     = "ORDER_CREATED"
	EventTypeOrderCompleted   = "ORDER_COMPLETED"
	EventTypeOrderFailed      = "ORDER_FAILED"
	EventTypeTokenIssued      = "TOKEN_ISSUED"
	EventTypeDownloadResolved = "DOWNLOAD_RESOLVED"
	EventTypePaymentSuccess   = "PAYMENT_SUCCESS"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when a checkout creates an order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	StoreID     int64           `json:"store_id"`
	BuyerEmail  string          `json:"buyer_email"`
	TotalAmount int64           `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderCompletedEvent published when payment settles and the order flips
// to COMPLETED
type OrderCompletedEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	BuyerEmail string `json:"buyer_email"`
	PaymentRef string `json:"payment_ref"`
}

// TokenIssuedEvent published when a download token is minted. Carries the
// token row id and expiry, never the raw token value.
type TokenIssuedEvent struct {
	BaseEvent
	OrderID   int64     `json:"order_id"`
	TokenID   int64     `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DownloadResolvedEvent published when a token is redeemed into a file
// listing (delivery analytics)
type DownloadResolvedEvent struct {
	BaseEvent
	OrderID   int64 `json:"order_id"`
	TokenID   int64 `json:"token_id"`
	FileCount int   `json:"file_count"`
}

// PaymentSuccessEvent consumed from the payment collaborator
type PaymentSuccessEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	PaymentRef string `json:"payment_ref"`
	Amount     int64  `json:"amount"`
}

// PaymentFailedEvent consumed from the payment collaborator
type PaymentFailedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64 `json:"product_id"`
	UnitPrice int64 `json:"unit_price"`
}
