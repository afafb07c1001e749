package audit

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbforge/kbforge/pkg/observability"
)

type fakeCleaner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	count   int64
	err     error
}

func (f *fakeCleaner) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, olderThan)
	return f.count, f.err
}

func TestJanitorRunOnceUsesRetentionCutoff(t *testing.T) {
	cleaner := &fakeCleaner{count: 3}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	janitor := NewJanitor(cleaner, 30*24*time.Hour, logger)

	before := time.Now().UTC().Add(-30 * 24 * time.Hour)
	janitor.runOnce()
	after := time.Now().UTC().Add(-30 * 24 * time.Hour)

	require.Len(t, cleaner.cutoffs, 1)
	cutoff := cleaner.cutoffs[0]
	assert.False(t, cutoff.Before(before))
	assert.False(t, cutoff.After(after))
}

func TestJanitorCleanupErrorDoesNotPanic(t *testing.T) {
	cleaner := &fakeCleaner{err: assert.AnError}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	janitor := NewJanitor(cleaner, time.Hour, logger)

	assert.NotPanics(t, func() { janitor.runOnce() })
}

func TestJanitorDisabledWhenRetentionZero(t *testing.T) {
	cleaner := &fakeCleaner{}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	janitor := NewJanitor(cleaner, 0, logger)

	require.NoError(t, janitor.Start())
	janitor.Stop()

	assert.Empty(t, cleaner.cutoffs)
}
