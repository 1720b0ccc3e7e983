package models

import "time"

// Product represents a digital product in a store's catalog
type Product struct {
	ID        int64     `db:"id" json:"id"`
	StoreID   int64     `db:"store_id" json:"store_id"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FileAsset is an uploaded file bound to a product. The storage key
// addresses the object in the bucket; clients never see it directly,
// only presigned URLs minted at delivery time.
type FileAsset struct {
	ID          int64     `db:"id" json:"id"`
	ProductID   int64     `db:"product_id" json:"product_id"`
	StorageKey  string    `db:"storage_key" json:"-"`
	Name        string    `db:"name" json:"name"`
	Size        int64     `db:"size" json:"size"`
	ContentType string    `db:"content_type" json:"content_type"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Order represents a customer purchase
type Order struct {
	ID             int64     `db:"id" json:"id"`
	StoreID        int64     `db:"store_id" json:"store_id"`
	BuyerEmail     string    `db:"buyer_email" json:"buyer_email"`
	TotalAmount    int64     `db:"total_amount" json:"total_amount"`
	Status         string    `db:"status" json:"status"`
	PaymentRef     string    `db:"payment_ref" json:"payment_ref,omitempty"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem is a purchased line item
type OrderItem struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
}

// DownloadToken grants time-limited access to an order's files. Only the
// SHA-256 of the raw token value is persisted; the raw value is returned
// to the caller once at issuance and cannot be recovered afterwards.
type DownloadToken struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   int64     `db:"order_id" json:"order_id"`
	TokenHash string    `db:"token_hash" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order statuses. PENDING flips to COMPLETED or FAILED exactly once,
// driven by payment events; orders are immutable afterwards.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusFailed    = "FAILED"
)

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
