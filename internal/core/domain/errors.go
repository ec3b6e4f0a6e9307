package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrConfiguration      = errors.New("missing configuration")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrSchemaMismatch     = errors.New("schema mismatch")
	ErrRetrieval          = errors.New("retrieval failure")
	ErrModelUnavailable   = errors.New("embedding model unavailable")
	ErrTemporary          = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
