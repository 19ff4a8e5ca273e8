package repository

import "errors"

// Sentinel kinds for sink errors.
var (
	// ErrInvalidBatch rejects a batch with an empty or repeated natural key.
	// Nothing from the batch is written.
	ErrInvalidBatch = errors.New("invalid batch")
	// ErrPersistence wraps storage failures. Rows committed by earlier calls
	// are kept.
	ErrPersistence = errors.New("persistence failure")
)
