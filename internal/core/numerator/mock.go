package numerator

import (
	"context"
	"sync/atomic"
)

// MockAllocator is a test implementation of Allocator.
// Use in unit tests to avoid database dependencies.
type MockAllocator struct {
	AllocateFunc func(ctx context.Context, key Key) (int64, error)

	calls atomic.Int64
	last  atomic.Int64
}

// Allocate implements Allocator.
func (m *MockAllocator) Allocate(ctx context.Context, key Key) (int64, error) {
	m.calls.Add(1)
	if m.AllocateFunc != nil {
		return m.AllocateFunc(ctx, key)
	}
	return m.last.Add(1), nil
}

// Current implements Allocator.
func (m *MockAllocator) Current(ctx context.Context, key Key) (int64, error) {
	return m.last.Load(), nil
}

// Seed implements Allocator.
func (m *MockAllocator) Seed(ctx context.Context, key Key, value int64) (int64, error) {
	for {
		cur := m.last.Load()
		if value <= cur {
			return cur, nil
		}
		if m.last.CompareAndSwap(cur, value) {
			return value, nil
		}
	}
}

// Calls returns how many times Allocate was invoked.
func (m *MockAllocator) Calls() int64 {
	return m.calls.Load()
}

// Ensure compile-time interface compliance.
var _ Allocator = (*MockAllocator)(nil)
