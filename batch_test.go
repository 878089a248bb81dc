package reactor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatch(t *testing.T) {
	t.Run("coalesces multiple writes into a single rerun", func(t *testing.T) {
		rt := New()
		a := NewSignalIn(rt, 0)
		b := NewSignalIn(rt, 0)
		runs := 0

		NewEffectIn(rt, func() {
			_ = a.Read() + b.Read()
			runs++
		})
		assert.Equal(t, 1, runs)

		err := rt.Batch(func() {
			a.Set(1)
			b.Set(1)
			assert.Equal(t, 1, runs, "effect must not rerun until the batch closes")
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, runs)
	})

	t.Run("nested batches only flush once the outermost one returns", func(t *testing.T) {
		rt := New()
		a := NewSignalIn(rt, 0)
		runs := 0
		NewEffectIn(rt, func() {
			a.Read()
			runs++
		})

		_ = rt.Batch(func() {
			a.Set(1)
			_ = rt.Batch(func() {
				a.Set(2)
			})
			assert.Equal(t, 1, runs, "still inside the outer batch")
		})
		assert.Equal(t, 2, runs)
	})
}

func TestAtomic(t *testing.T) {
	t.Run("commits every write when fn succeeds", func(t *testing.T) {
		rt := New()
		count := NewSignalIn(rt, 0)

		err := rt.Atomic(func() error {
			count.Set(1)
			count.Set(2)
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 2, count.Peek())
	})

	t.Run("rolls back every write when fn returns an error", func(t *testing.T) {
		rt := New()
		count := NewSignalIn(rt, 0)
		boom := errors.New("boom")

		err := rt.Atomic(func() error {
			count.Set(1)
			count.Set(2)
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, count.Peek())
	})

	t.Run("rolls back every write when fn panics", func(t *testing.T) {
		rt := New()
		count := NewSignalIn(rt, 0)

		assert.Panics(t, func() {
			_ = rt.Atomic(func() error {
				count.Set(1)
				panic("nope")
			})
		})
		assert.Equal(t, 0, count.Peek())
	})

	t.Run("InAtomic reports true only while a scope is open", func(t *testing.T) {
		rt := New()
		assert.False(t, rt.InAtomic())

		_ = rt.Atomic(func() error {
			assert.True(t, rt.InAtomic())
			return nil
		})
		assert.False(t, rt.InAtomic())
	})

	t.Run("a rollback does not rerun effects downstream of the restored signal", func(t *testing.T) {
		rt := New()
		count := NewSignalIn(rt, 0)
		runs := 0
		NewEffectIn(rt, func() {
			count.Read()
			runs++
		})
		assert.Equal(t, 1, runs)

		_ = rt.Atomic(func() error {
			count.Set(1)
			return errors.New("rollback")
		})
		assert.Equal(t, 1, runs, "the committed write that would trigger a rerun never happened")
	})
}
