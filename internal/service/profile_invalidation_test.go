package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyInvalidator struct {
	mu       sync.Mutex
	failures int
	calls    []string
}

func (f *flakyInvalidator) Invalidate(ctx context.Context, studentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, studentID)
	if f.failures > 0 {
		f.failures--
		return errors.New("redis unavailable")
	}
	return nil
}

func (f *flakyInvalidator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestProfileInvalidationQueueRetries(t *testing.T) {
	target := &flakyInvalidator{failures: 2}
	q := NewProfileInvalidationQueue(target, time.Millisecond, nil)
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Invalidate(context.Background(), "s-1"))
	assert.Eventually(t, func() bool { return target.callCount() == 3 }, time.Second, 5*time.Millisecond)
}

func TestProfileInvalidationQueueFallsBackInline(t *testing.T) {
	target := &flakyInvalidator{}
	q := NewProfileInvalidationQueue(target, time.Millisecond, nil)

	require.NoError(t, q.Invalidate(context.Background(), "s-1"))
	assert.Equal(t, 1, target.callCount())
}
