package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"delivery-service/config"
	"delivery-service/internal/models"
	"delivery-service/internal/service"
	"delivery-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLedger struct {
	mu     sync.Mutex
	orders map[int64]*models.Order
	items  map[int64][]models.OrderItem
	assets map[int64][]models.FileAsset
	tokens map[string]*models.DownloadToken
	nextID int64
}

func newMemLedger() *memLedger {
	return &memLedger{
		orders: make(map[int64]*models.Order),
		items:  make(map[int64][]models.OrderItem),
		assets: make(map[int64][]models.FileAsset),
		tokens: make(map[string]*models.DownloadToken),
	}
}

func (m *memLedger) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	copied := *order
	return &copied, nil
}

func (m *memLedger) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderItem(nil), m.items[orderID]...), nil
}

func (m *memLedger) GetFileAssetsByProductIDs(_ context.Context, ids []int64) ([]models.FileAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.FileAsset
	for _, id := range ids {
		out = append(out, m.assets[id]...)
	}
	return out, nil
}

func (m *memLedger) CreateDownloadToken(_ context.Context, token *models.DownloadToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	token.ID = m.nextID
	copied := *token
	m.tokens[token.TokenHash] = &copied
	return nil
}

func (m *memLedger) GetDownloadTokenByHash(_ context.Context, hash string) (*models.DownloadToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[hash]
	if !ok {
		return nil, fmt.Errorf("download token: %w", store.ErrNotFound)
	}
	copied := *token
	return &copied, nil
}

// expireAll backdates every stored token
func (m *memLedger) expireAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range m.tokens {
		token.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

type memGateway struct{ fail bool }

func (g *memGateway) PresignedDownloadURL(_ context.Context, storageKey string, _ time.Duration) (string, error) {
	if g.fail {
		return "", fmt.Errorf("dial tcp: connection refused")
	}
	return "https://files.example.com/" + storageKey + "?sig=test", nil
}

func (g *memGateway) PresignedUploadURL(_ context.Context, storageKey string, _ time.Duration) (string, error) {
	return "https://files.example.com/" + storageKey + "?upload=test", nil
}

func (g *memGateway) Exists(_ context.Context, _ string) (bool, error) { return true, nil }
func (g *memGateway) Remove(_ context.Context, _ string) error         { return nil }

type noopCache struct{}

func (noopCache) GetListing(_ context.Context, _ int64) ([]models.FileAsset, error) {
	return nil, nil
}
func (noopCache) SetListing(_ context.Context, _ int64, _ []models.FileAsset, _ time.Duration) error {
	return nil
}
func (noopCache) IncrRedemption(_ context.Context, _ int64) (int64, error) { return 1, nil }

type noopPublisher struct{}

func (noopPublisher) PublishTokenIssued(_ context.Context, _ *models.TokenIssuedEvent) error {
	return nil
}
func (noopPublisher) PublishDownloadResolved(_ context.Context, _ *models.DownloadResolvedEvent) error {
	return nil
}

func newTestRouter(ledger *memLedger, gateway *memGateway) (*gin.Engine, *service.TokenService) {
	gin.SetMode(gin.TestMode)

	tokens := service.NewTokenService(ledger, gateway, noopCache{}, noopPublisher{}, config.TokenConfig{
		TokenTTL:        48 * time.Hour,
		PresignTTL:      time.Hour,
		ListingCacheTTL: 5 * time.Minute,
	})

	router := gin.New()
	handler := NewHandler(nil, tokens, nil)
	handler.SetupRoutes(router)
	return router, tokens
}

func seedCompletedOrder(ledger *memLedger, orderID int64, files map[int64][]string) {
	ledger.orders[orderID] = &models.Order{
		ID:         orderID,
		StoreID:    1,
		BuyerEmail: "buyer@example.com",
		Status:     models.OrderStatusCompleted,
	}

	var itemID, assetID int64
	for productID, names := range files {
		itemID++
		ledger.items[orderID] = append(ledger.items[orderID], models.OrderItem{
			ID:        itemID,
			OrderID:   orderID,
			ProductID: productID,
			UnitPrice: 1500,
		})
		for _, name := range names {
			assetID++
			ledger.assets[productID] = append(ledger.assets[productID], models.FileAsset{
				ID:         assetID,
				ProductID:  productID,
				StorageKey: fmt.Sprintf("products/%d/%s", productID, name),
				Name:       name,
			})
		}
	}
}

func TestDownloadSingleFileRedirects(t *testing.T) {
	ledger := newMemLedger()
	seedCompletedOrder(ledger, 1, map[int64][]string{10: {"ebook.pdf"}})

	router, tokens := newTestRouter(ledger, &memGateway{})

	issued, err := tokens.IssueToken(context.Background(), 1)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/download/"+issued.RawToken, nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "products/10/ebook.pdf")
}

func TestDownloadMultiFileReturnsJSON(t *testing.T) {
	ledger := newMemLedger()
	seedCompletedOrder(ledger, 1, map[int64][]string{
		10: {"ebook.pdf"},
		20: {"audio.mp3"},
	})

	router, tokens := newTestRouter(ledger, &memGateway{})

	issued, err := tokens.IssueToken(context.Background(), 1)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/download/"+issued.RawToken, nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var delivery service.Delivery
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &delivery))
	assert.Len(t, delivery.Files, 2)
	assert.Equal(t, "buyer@example.com", delivery.Order.BuyerEmail)
}

func TestDownloadFilesVariantNeverRedirects(t *testing.T) {
	ledger := newMemLedger()
	seedCompletedOrder(ledger, 1, map[int64][]string{10: {"ebook.pdf"}})

	router, tokens := newTestRouter(ledger, &memGateway{})

	issued, err := tokens.IssueToken(context.Background(), 1)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/download/"+issued.RawToken+"/files", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var delivery service.Delivery
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &delivery))
	require.Len(t, delivery.Files, 1)
	assert.Equal(t, "ebook.pdf", delivery.Files[0].Name)
}

func TestDownloadInvalidToken(t *testing.T) {
	router, _ := newTestRouter(newMemLedger(), &memGateway{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/download/not-a-real-token", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "invalid")
}

func TestDownloadExpiredToken(t *testing.T) {
	ledger := newMemLedger()
	seedCompletedOrder(ledger, 1, map[int64][]string{10: {"ebook.pdf"}})

	router, tokens := newTestRouter(ledger, &memGateway{})

	issued, err := tokens.IssueToken(context.Background(), 1)
	require.NoError(t, err)

	ledger.expireAll()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/download/"+issued.RawToken, nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "expired")
}

func TestDownloadNoFilesIsNotAnError(t *testing.T) {
	ledger := newMemLedger()
	seedCompletedOrder(ledger, 1, map[int64][]string{30: nil})

	router, tokens := newTestRouter(ledger, &memGateway{})

	issued, err := tokens.IssueToken(context.Background(), 1)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/download/"+issued.RawToken, nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var delivery service.Delivery
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &delivery))
	assert.Empty(t, delivery.Files)
}

func TestDownloadStorageUnavailable(t *testing.T) {
	ledger := newMemLedger()
	seedCompletedOrder(ledger, 1, map[int64][]string{10: {"ebook.pdf"}})

	gateway := &memGateway{fail: true}
	router, tokens := newTestRouter(ledger, gateway)

	issued, err := tokens.IssueToken(context.Background(), 1)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/download/"+issued.RawToken, nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIssueTokenForPendingOrder(t *testing.T) {
	ledger := newMemLedger()
	seedCompletedOrder(ledger, 1, map[int64][]string{10: {"ebook.pdf"}})
	ledger.orders[1].Status = models.OrderStatusPending

	router, _ := newTestRouter(ledger, &memGateway{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/1/download-token", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIssueTokenForUnknownOrder(t *testing.T) {
	router, _ := newTestRouter(newMemLedger(), &memGateway{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/99/download-token", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIssueTokenForCompletedOrder(t *testing.T) {
	ledger := newMemLedger()
	seedCompletedOrder(ledger, 1, map[int64][]string{10: {"ebook.pdf"}})

	router, _ := newTestRouter(ledger, &memGateway{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/1/download-token", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var issued service.IssuedToken
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	assert.NotEmpty(t, issued.RawToken)
	assert.True(t, issued.ExpiresAt.After(time.Now()))
}
