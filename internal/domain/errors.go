package domain

import "errors"

// Transport failure signals. Senders wrap them with %w.
var (
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrPermissionDenied = errors.New("permission denied")
	ErrDestinationGone  = errors.New("destination removed")
	ErrRateLimited      = errors.New("rate limited")
)

// ErrNotFound is returned by stores for missing records.
var ErrNotFound = errors.New("not found")
