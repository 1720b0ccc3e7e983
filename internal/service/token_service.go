package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"delivery-service/config"
	"delivery-service/internal/models"
	"delivery-service/internal/objectstore"
	"delivery-service/internal/store"
	"delivery-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// rawTokenBytes is the entropy of a raw token value (256 bits)
const rawTokenBytes = 32

// Ledger is the slice of the relational store the token service touches
type Ledger interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetFileAssetsByProductIDs(ctx context.Context, ids []int64) ([]models.FileAsset, error)
	CreateDownloadToken(ctx context.Context, token *models.DownloadToken) error
	GetDownloadTokenByHash(ctx context.Context, hash string) (*models.DownloadToken, error)
}

// ListingCache caches the deliverable file set per order
type ListingCache interface {
	GetListing(ctx context.Context, orderID int64) ([]models.FileAsset, error)
	SetListing(ctx context.Context, orderID int64, assets []models.FileAsset, ttl time.Duration) error
	IncrRedemption(ctx context.Context, tokenID int64) (int64, error)
}

// DeliveryPublisher emits delivery lifecycle events
type DeliveryPublisher interface {
	PublishTokenIssued(ctx context.Context, event *models.TokenIssuedEvent) error
	PublishDownloadResolved(ctx context.Context, event *models.DownloadResolvedEvent) error
}

// TokenService mints download tokens for completed orders and resolves
// presented tokens into presigned file listings.
type TokenService struct {
	store     Ledger
	gateway   objectstore.Gateway
	cache     ListingCache
	publisher DeliveryPublisher
	cfg       config.TokenConfig
	logger    *zap.Logger

	// now is swapped in tests to step across expiry boundaries
	now func() time.Time
}

// NewTokenService creates a new token service
func NewTokenService(
	ledger Ledger,
	gateway objectstore.Gateway,
	cache ListingCache,
	publisher DeliveryPublisher,
	cfg config.TokenConfig,
) *TokenService {
	return &TokenService{
		store:     ledger,
		gateway:   gateway,
		cache:     cache,
		publisher: publisher,
		cfg:       cfg,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// IssuedToken is returned to the caller exactly once; the raw value is
// not recoverable from storage afterwards.
type IssuedToken struct {
	RawToken  string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OrderSummary is the order view attached to a resolved delivery
type OrderSummary struct {
	ID          int64  `json:"id"`
	BuyerEmail  string `json:"buyer_email"`
	TotalAmount int64  `json:"total_amount"`
	Status      string `json:"status"`
}

// DeliverableFile is one downloadable file with its presigned URL
type DeliverableFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Delivery is the result of resolving a token
type Delivery struct {
	Order OrderSummary      `json:"order"`
	Files []DeliverableFile `json:"files"`
}

// IssueToken mints a token bound to a completed order
func (s *TokenService) IssueToken(ctx context.Context, orderID int64) (*IssuedToken, error) {
	ctx, span := util.StartSpan(ctx, "TokenService.IssueToken")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if order.Status != models.OrderStatusCompleted {
		return nil, fmt.Errorf("%w: order %d is %s", ErrOrderNotCompleted, orderID, order.Status)
	}

	raw, err := newRawToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	token := &models.DownloadToken{
		OrderID:   orderID,
		TokenHash: hashToken(raw),
		ExpiresAt: s.now().Add(s.cfg.TokenTTL),
	}

	if err := s.store.CreateDownloadToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to persist token: %w", err)
	}

	util.TokensIssuedTotal.Inc()
	s.logger.Info("Download token issued",
		zap.Int64("order_id", orderID),
		zap.Int64("token_id", token.ID),
		zap.Time("expires_at", token.ExpiresAt))

	event := &models.TokenIssuedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeTokenIssued,
			Timestamp: s.now(),
		},
		OrderID:   orderID,
		TokenID:   token.ID,
		ExpiresAt: token.ExpiresAt,
	}

	if err := s.publisher.PublishTokenIssued(ctx, event); err != nil {
		s.logger.Error("Failed to publish TokenIssued event", zap.Error(err))
	}

	return &IssuedToken{RawToken: raw, ExpiresAt: token.ExpiresAt}, nil
}

// ResolveToken validates a presented token and returns the order's file
// listing with fresh presigned URLs. Resolution has no persisted side
// effects; the same token resolves to the same listing until expiry.
func (s *TokenService) ResolveToken(ctx context.Context, rawToken string) (*Delivery, error) {
	ctx, span := util.StartSpan(ctx, "TokenService.ResolveToken")
	defer span.End()

	if rawToken == "" {
		util.TokenResolutionsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}

	token, err := s.store.GetDownloadTokenByHash(ctx, hashToken(rawToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.TokenResolutionsTotal.WithLabelValues("invalid").Inc()
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if s.now().After(token.ExpiresAt) {
		util.TokenResolutionsTotal.WithLabelValues("expired").Inc()
		return nil, fmt.Errorf("%w: expired at %s", ErrExpiredToken, token.ExpiresAt.UTC().Format(time.RFC3339))
	}

	order, err := s.store.GetOrderByID(ctx, token.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %d: %w", token.OrderID, err)
	}

	assets, err := s.loadListing(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	files, err := s.presignAll(ctx, assets)
	if err != nil {
		util.TokenResolutionsTotal.WithLabelValues("storage_error").Inc()
		return nil, err
	}

	util.TokenResolutionsTotal.WithLabelValues("success").Inc()
	util.FilesDeliveredTotal.Add(float64(len(files)))

	if _, err := s.cache.IncrRedemption(ctx, token.ID); err != nil {
		s.logger.Warn("Failed to count redemption", zap.Int64("token_id", token.ID), zap.Error(err))
	}

	event := &models.DownloadResolvedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeDownloadResolved,
			Timestamp: s.now(),
		},
		OrderID:   order.ID,
		TokenID:   token.ID,
		FileCount: len(files),
	}

	if err := s.publisher.PublishDownloadResolved(ctx, event); err != nil {
		s.logger.Error("Failed to publish DownloadResolved event", zap.Error(err))
	}

	return &Delivery{
		Order: OrderSummary{
			ID:          order.ID,
			BuyerEmail:  order.BuyerEmail,
			TotalAmount: order.TotalAmount,
			Status:      order.Status,
		},
		Files: files,
	}, nil
}

// loadListing returns the file assets deliverable for an order, cache
// first, in a stable order (product, then upload order).
func (s *TokenService) loadListing(ctx context.Context, orderID int64) ([]models.FileAsset, error) {
	cached, err := s.cache.GetListing(ctx, orderID)
	if err != nil {
		s.logger.Warn("Listing cache read failed", zap.Int64("order_id", orderID), zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}

	seen := make(map[int64]bool, len(items))
	productIDs := make([]int64, 0, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			productIDs = append(productIDs, item.ProductID)
		}
	}

	assets, err := s.store.GetFileAssetsByProductIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load file assets: %w", err)
	}

	sort.Slice(assets, func(i, j int) bool {
		if assets[i].ProductID != assets[j].ProductID {
			return assets[i].ProductID < assets[j].ProductID
		}
		return assets[i].ID < assets[j].ID
	})

	if err := s.cache.SetListing(ctx, orderID, assets, s.cfg.ListingCacheTTL); err != nil {
		s.logger.Warn("Listing cache write failed", zap.Int64("order_id", orderID), zap.Error(err))
	}

	return assets, nil
}

// presignAll mints a short-lived download URL per asset. The calls are
// independent and read-only so they fan out concurrently; the returned
// slice keeps the listing order regardless of completion order.
func (s *TokenService) presignAll(ctx context.Context, assets []models.FileAsset) ([]DeliverableFile, error) {
	start := time.Now()
	defer func() {
		util.PresignLatency.Observe(time.Since(start).Seconds())
	}()

	files := make([]DeliverableFile, len(assets))
	errCh := make(chan error, len(assets))

	var wg sync.WaitGroup
	for i, asset := range assets {
		wg.Add(1)
		go func(i int, asset models.FileAsset) {
			defer wg.Done()

			url, err := s.gateway.PresignedDownloadURL(ctx, asset.StorageKey, s.cfg.PresignTTL)
			if err != nil {
				errCh <- err
				return
			}
			files[i] = DeliverableFile{Name: asset.Name, URL: url}
		}(i, asset)
	}
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return files, nil
}

// newRawToken draws a high-entropy opaque token value
func newRawToken() (string, error) {
	buf := make([]byte, rawTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashToken computes the persisted one-way fingerprint of a raw token
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
