package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxBatch is the default maximum number of changes per push.
const DefaultMaxBatch = 500

// Default pull page sizes.
const (
	DefaultPullLimit = 100
	MaxPullLimit     = 500
)

// BatchTooLargeError is returned when a push carries more changes than the
// configured limit. The batch is rejected before any change is processed.
type BatchTooLargeError struct {
	Size  int // Number of changes submitted
	Limit int // Maximum allowed changes
}

// Error implements the error interface.
func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("push batch too large: %d changes > %d limit", e.Size, e.Limit)
}

// IsBatchTooLarge returns true if the error is a BatchTooLargeError.
// Uses errors.As to handle wrapped errors.
func IsBatchTooLarge(err error) bool {
	var be *BatchTooLargeError
	return errors.As(err, &be)
}

// checkBatchQuota rejects batches over limit. A non-positive limit disables
// the check.
func checkBatchQuota(size, limit int) error {
	if limit > 0 && size > limit {
		return &BatchTooLargeError{Size: size, Limit: limit}
	}
	return nil
}

// clampPullLimit applies the pull page size policy: non-positive limits
// use def, limits above maxLimit are reduced to it.
func clampPullLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
