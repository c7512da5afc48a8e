package ratelimiter

import "errors"

var (
	ErrInvalidConfig    = errors.New("ratelimiter: invalid configuration")
	ErrNilStore         = errors.New("ratelimiter: store is nil")
	ErrStoreUnavailable = errors.New("ratelimiter: store unavailable")
)
