package numerator

import (
	"context"
)

// Allocator reserves fiscal document numbers.
//
// A number returned by Allocate is consumed for good: it is never handed out
// again for the same Key, even if the caller crashes before using it.
// Gaps are tolerated, reuse is not.
type Allocator interface {
	// Allocate atomically increments the stream and returns the new value.
	// The stream is created with 1 on first use.
	Allocate(ctx context.Context, key Key) (int64, error)

	// Current returns the last allocated number, 0 if the stream does not exist.
	Current(ctx context.Context, key Key) (int64, error)

	// Seed raises the last allocated number to at least value.
	// It never lowers it, so seeding cannot cause reuse.
	Seed(ctx context.Context, key Key, value int64) (int64, error)
}
