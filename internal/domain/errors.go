package domain

import "errors"

// Domain errors
var (
	ErrGameNotFound        = errors.New("game not found")
	ErrInvalidGame         = errors.New("invalid game")
	ErrInvalidSortKey      = errors.New("invalid sort key")
	ErrCollectionNotReady  = errors.New("collection not ready")
	ErrMetadataUnavailable = errors.New("metadata provider not configured")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInternalError       = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrGameNotFound)
}
