package chunking

import "errors"

var (
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrOverlapTooLarge  = errors.New("overlap must be smaller than chunk size")
)
