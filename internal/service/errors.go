package service

import "errors"

// Delivery error taxonomy. Invalid and expired are deliberately distinct
// so the endpoint can show different messages for a mistyped link and a
// stale one.
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotCompleted  = errors.New("order not completed")
	ErrInvalidToken       = errors.New("invalid download token")
	ErrExpiredToken       = errors.New("download token expired")
	ErrStorageUnavailable = errors.New("object storage unavailable")
)
