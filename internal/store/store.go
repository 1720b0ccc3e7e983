package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"delivery-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a row does not exist. Callers distinguish
// it from transport failures with errors.Is.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// CreateFileAsset registers an uploaded file for a product
func (s *Store) CreateFileAsset(ctx context.Context, asset *models.FileAsset) error {
	query := `
		INSERT INTO file_assets (product_id, storage_key, name, size, content_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, asset, query,
		asset.ProductID, asset.StorageKey, asset.Name, asset.Size, asset.ContentType)
}

// GetFileAssetByID retrieves a file asset by ID
func (s *Store) GetFileAssetByID(ctx context.Context, id int64) (*models.FileAsset, error) {
	var asset models.FileAsset
	err := s.db.GetContext(ctx, &asset, "SELECT * FROM file_assets WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("file asset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// GetFileAssetsByProductIDs retrieves all file assets for the given
// products, ordered by product then upload order
func (s *Store) GetFileAssetsByProductIDs(ctx context.Context, ids []int64) ([]models.FileAsset, error) {
	if len(ids) == 0 {
		return []models.FileAsset{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT * FROM file_assets WHERE product_id IN (?) ORDER BY product_id, id", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var assets []models.FileAsset
	err = s.db.SelectContext(ctx, &assets, query, args...)
	return assets, err
}

// DeleteFileAsset removes a file asset row
func (s *Store) DeleteFileAsset(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM file_assets WHERE id = $1", id)
	return err
}
