package reactor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwner(t *testing.T) {
	t.Run("runs function and disposes", func(t *testing.T) {
		rt := New()
		owner := rt.NewOwner()
		ran := false
		cleaned := false

		err := owner.Run(func() error {
			ran = true
			owner.OnCleanup(func() { cleaned = true })
			return nil
		})

		assert.NoError(t, err)
		assert.True(t, ran)
		assert.False(t, cleaned)

		owner.Dispose()
		assert.True(t, cleaned)
		assert.True(t, owner.Disposed())
	})

	t.Run("nested owners dispose with their parent", func(t *testing.T) {
		rt := New()
		parent := rt.NewOwner()
		var child *Owner
		childCleaned := false

		_ = parent.Run(func() error {
			child = rt.NewOwner()
			child.OnCleanup(func() { childCleaned = true })
			return nil
		})

		parent.Dispose()
		assert.True(t, childCleaned)
		assert.True(t, child.Disposed())
		assert.True(t, parent.Disposed())
	})

	t.Run("sibling effects dispose most-recently-created first", func(t *testing.T) {
		rt := New()
		owner := rt.NewOwner()
		var order []string

		_ = owner.Run(func() error {
			NewEffectIn(rt, func() {
				rt.OnCleanup(func() { order = append(order, "first") })
			})
			NewEffectIn(rt, func() {
				rt.OnCleanup(func() { order = append(order, "second") })
			})
			return nil
		})

		owner.Dispose()
		assert.Equal(t, []string{"second", "first"}, order)
	})

	t.Run("catches panics raised inside Run via OnError", func(t *testing.T) {
		rt := New()
		owner := rt.NewOwner()
		var caught any
		owner.OnError(func(p any) { caught = p })

		err := owner.Run(func() error {
			panic("boom")
		})

		assert.NoError(t, err)
		assert.Equal(t, "boom", caught)
	})

	t.Run("panic with no OnError catcher propagates to the caller", func(t *testing.T) {
		rt := New()
		owner := rt.NewOwner()

		assert.Panics(t, func() {
			_ = owner.Run(func() error {
				panic(errors.New("uncaught"))
			})
		})
	})

	t.Run("disposing an owner prevents its effects from rerunning", func(t *testing.T) {
		rt := New()
		owner := rt.NewOwner()
		count := NewSignalIn(rt, 0)
		runs := 0

		_ = owner.Run(func() error {
			NewEffectIn(rt, func() {
				count.Read()
				runs++
			})
			return nil
		})
		assert.Equal(t, 1, runs)

		owner.Dispose()
		count.Set(1)
		assert.Equal(t, 1, runs, "no rerun after the owning scope is disposed")
	})

	t.Run("an effect can dispose its own owner mid-run without deadlocking", func(t *testing.T) {
		rt := New()
		count := NewSignalIn(rt, 0)
		var e *Effect
		runs := 0

		e = NewEffectIn(rt, func() {
			count.Read()
			runs++
			if runs == 2 {
				e.Dispose()
			}
		})

		count.Set(1)
		assert.Equal(t, 2, runs)

		count.Set(2)
		assert.Equal(t, 2, runs, "disposed mid-run, so the third write triggers nothing")
		assert.True(t, e.Disposed())
	})
}
