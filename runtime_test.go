package reactor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrictThread(t *testing.T) {
	t.Run("off by default: another goroutine may use the runtime", func(t *testing.T) {
		rt := New()
		count := NewSignalIn(rt, 0)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			count.Set(1)
		}()
		wg.Wait()
		assert.Equal(t, 1, count.Peek())
	})

	t.Run("rejects Batch/Atomic/FlushSync from a foreign goroutine", func(t *testing.T) {
		rt := New(WithStrictThread(true))

		var err error
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			err = rt.Batch(func() {})
		}()
		wg.Wait()
		assert.ErrorIs(t, err, ErrWrongThread)
	})

	t.Run("allows calls from the creating goroutine", func(t *testing.T) {
		rt := New(WithStrictThread(true))
		assert.NoError(t, rt.Batch(func() {}))
	})
}

func TestHooks(t *testing.T) {
	t.Run("RegisterNode and RecordUpdate are invoked for a signal's lifecycle", func(t *testing.T) {
		hooks := &countingHooks{}
		rt := New(WithHooks(hooks))
		count := NewSignalIn(rt, 0)
		count.Set(1)

		assert.Equal(t, 1, hooks.registered)
		assert.Equal(t, 1, hooks.updated)
	})

	t.Run("WithTiming wraps an effect's run", func(t *testing.T) {
		hooks := &countingHooks{}
		rt := New(WithHooks(hooks))
		NewEffectIn(rt, func() {})

		assert.Equal(t, 1, hooks.timed)
	})
}

type countingHooks struct {
	registered, updated, timed int
}

func (h *countingHooks) RegisterNode(id uint64, kind string) { h.registered++ }
func (h *countingHooks) UnregisterNode(id uint64)            {}
func (h *countingHooks) RecordUpdate(id uint64)              { h.updated++ }
func (h *countingHooks) WithTiming(id uint64, fn func()) {
	h.timed++
	fn()
}
