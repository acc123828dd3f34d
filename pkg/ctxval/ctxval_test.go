package ctxval_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nguyentranbao-ct/field-booking-admin/pkg/ctxval"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	t.Run("wrapped context", func(t *testing.T) {
		ctx := ctxval.Wrap(t.Context())
		ctxval.SetRequestID(ctx, "req-1")
		assert.Equal(t, "req-1", ctxval.RequestID(ctx))
	})

	t.Run("unwrapped context is untouched", func(t *testing.T) {
		ctx := t.Context()
		ctxval.SetRequestID(ctx, "req-1")
		assert.Empty(t, ctxval.RequestID(ctx))
	})

	t.Run("derived contexts share the scope", func(t *testing.T) {
		ctx := ctxval.Wrap(t.Context())
		child, cancel := context.WithCancel(ctx)
		defer cancel()
		assert.True(t, child == ctxval.Wrap(child), "wrapping again keeps the scope")

		ctxval.SetRequestID(child, "req-2")
		assert.Equal(t, "req-2", ctxval.RequestID(ctx))
	})
}

func TestFields(t *testing.T) {
	t.Parallel()

	ctx := ctxval.Wrap(t.Context())
	assert.Nil(t, ctxval.Fields(ctx))

	ctxval.AddFields(ctx, "request_id", "r1")
	ctxval.AddFields(ctx, "agent_id", "a1", "dangling")
	ctxval.AddFields(ctx, "agent_id", "a2")
	assert.Equal(t, []any{"request_id", "r1", "agent_id", "a2"}, ctxval.Fields(ctx))

	fields := ctxval.Fields(ctx)
	fields[1] = "changed"
	assert.Equal(t, "r1", ctxval.Fields(ctx)[1], "callers get a copy")

	plain := t.Context()
	ctxval.AddFields(plain, "k", "v")
	assert.Nil(t, ctxval.Fields(plain))
}

func TestConcurrentOperations(t *testing.T) {
	t.Parallel()
	ctx := ctxval.Wrap(t.Context())
	const numGoroutines = 50
	const numOperations = 200

	var wg sync.WaitGroup
	wg.Add(numGoroutines * 2)
	for i := range numGoroutines {
		go func(routineID int) {
			defer wg.Done()
			for j := range numOperations {
				ctxval.AddFields(ctx, fmt.Sprintf("key-%d", j%10), routineID)
				ctxval.SetRequestID(ctx, fmt.Sprintf("req-%d", routineID))
			}
		}(i)
	}
	for range numGoroutines {
		go func() {
			defer wg.Done()
			for range numOperations {
				_ = ctxval.Fields(ctx)
				_ = ctxval.RequestID(ctx)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ctxval.Fields(ctx), 20)
	assert.NotEmpty(t, ctxval.RequestID(ctx))
}
