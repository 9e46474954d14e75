package vectorstore

import "errors"

var (
	// ErrStoreDisabled marks a backend that failed to connect at startup and
	// now answers every operation with an empty result. Callers treat it as
	// "no data", distinct from "no matches".
	ErrStoreDisabled = errors.New("vector store disabled")

	ErrLengthMismatch    = errors.New("input lists must have the same length")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
