package domain

import "fmt"

// SessionConfig bounds how an input stream is split into daemon sessions.
type SessionConfig struct {
	// ChunkSize is the number of new input bytes sent in one session before it is closed.
	ChunkSize int

	// BufferSize is the size of each read from the input and of each frame payload.
	BufferSize int

	// OverlapSize is the number of trailing bytes of a closed session re-sent
	// at the head of the next one.
	OverlapSize int
}

// Validate checks the size invariants. Overlap may be zero.
func (c SessionConfig) Validate() error {
	if c.BufferSize <= 0 {
		return fmt.Errorf("%w: buffer size must be positive, got %d", ErrInvalidConfig, c.BufferSize)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.OverlapSize < 0 {
		return fmt.Errorf("%w: overlap size must not be negative, got %d", ErrInvalidConfig, c.OverlapSize)
	}
	if c.OverlapSize >= c.ChunkSize {
		return fmt.Errorf("%w: overlap size %d must be smaller than chunk size %d", ErrInvalidConfig, c.OverlapSize, c.ChunkSize)
	}
	return nil
}

// MaxSessionBytes is the largest payload a single session can carry:
// one chunk of new input plus the re-sent overlap. The daemon's stream
// limit must be at least this large.
func (c SessionConfig) MaxSessionBytes() int {
	return c.ChunkSize + c.OverlapSize
}
