package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"delivery-service/internal/models"
)

// CreateDownloadToken persists a minted token. Only the hash lands in the
// database; the raw value never does.
func (s *Store) CreateDownloadToken(ctx context.Context, token *models.DownloadToken) error {
	query := `
		INSERT INTO download_tokens (order_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, token, query,
		token.OrderID, token.TokenHash, token.ExpiresAt)
}

// GetDownloadTokenByHash looks up a token by the hash of its raw value
func (s *Store) GetDownloadTokenByHash(ctx context.Context, hash string) (*models.DownloadToken, error) {
	var token models.DownloadToken
	err := s.db.GetContext(ctx, &token,
		"SELECT * FROM download_tokens WHERE token_hash = $1", hash)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("download token: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// DeleteExpiredTokens removes tokens past expiry. Housekeeping only;
// validation never depends on this having run.
func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM download_tokens WHERE expires_at < $1", now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
