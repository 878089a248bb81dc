package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffect(t *testing.T) {
	t.Run("runs immediately on creation", func(t *testing.T) {
		rt := New()
		runs := 0
		NewEffectIn(rt, func() { runs++ })
		assert.Equal(t, 1, runs)
	})

	t.Run("drains multiple cleanups from one run in LIFO order", func(t *testing.T) {
		rt := New()
		count := NewSignalIn(rt, 0)
		var order []string

		NewEffectIn(rt, func() {
			count.Read()
			rt.OnCleanup(func() { order = append(order, "A") })
			rt.OnCleanup(func() { order = append(order, "B") })
			rt.OnCleanup(func() { order = append(order, "C") })
		})
		assert.Empty(t, order)

		count.Set(1)
		assert.Equal(t, []string{"C", "B", "A"}, order)
	})

	t.Run("reruns on signal change and cleans up the previous run", func(t *testing.T) {
		rt := New()
		count := NewSignalIn(rt, 0)
		var log []string

		NewEffectIn(rt, func() {
			v := count.Read()
			rt.OnCleanup(func() { log = append(log, "cleanup") })
			log = append(log, "run")
			_ = v
		})

		count.Set(1)
		count.Set(2)

		assert.Equal(t, []string{"run", "cleanup", "run", "cleanup", "run"}, log)
	})

	t.Run("writes to another signal", func(t *testing.T) {
		rt := New()
		source := NewSignalIn(rt, 1)
		mirror := NewSignalIn(rt, 0)

		NewEffectIn(rt, func() { mirror.Set(source.Read() * 10) })

		assert.Equal(t, 10, mirror.Peek())
		source.Set(2)
		assert.Equal(t, 20, mirror.Peek())
	})

	t.Run("nested effects run independently", func(t *testing.T) {
		rt := New()
		outerSig := NewSignalIn(rt, 0)
		innerSig := NewSignalIn(rt, 0)
		outerRuns, innerRuns := 0, 0

		NewEffectIn(rt, func() {
			outerSig.Read()
			outerRuns++
			NewEffectIn(rt, func() {
				innerSig.Read()
				innerRuns++
			})
		})

		assert.Equal(t, 1, outerRuns)
		assert.Equal(t, 1, innerRuns)

		innerSig.Set(1)
		assert.Equal(t, 1, outerRuns)
		assert.Equal(t, 2, innerRuns, "inner effect alone reruns for its own dependency")

		outerSig.Set(1)
		assert.Equal(t, 2, outerRuns)
		assert.Equal(t, 3, innerRuns, "outer rerun recreates a fresh inner effect, which runs once")
	})

	t.Run("diamond dependency runs the sink once per change", func(t *testing.T) {
		rt := New()
		root := NewSignalIn(rt, 1)
		left := NewComputedIn(rt, func() int { return root.Read() + 1 })
		right := NewComputedIn(rt, func() int { return root.Read() * 2 })
		runs := 0

		NewEffectIn(rt, func() {
			_ = left.Read() + right.Read()
			runs++
		})
		assert.Equal(t, 1, runs)

		root.Set(5)
		assert.Equal(t, 2, runs, "the sink reruns once, not once per branch")
	})

	t.Run("diamond dependency nested under another effect", func(t *testing.T) {
		rt := New()
		root := NewSignalIn(rt, 1)
		left := NewComputedIn(rt, func() int { return root.Read() + 1 })
		right := NewComputedIn(rt, func() int { return root.Read() * 2 })
		sinkRuns := 0

		NewEffectIn(rt, func() {
			NewEffectIn(rt, func() {
				_ = left.Read() + right.Read()
				sinkRuns++
			})
		})
		assert.Equal(t, 1, sinkRuns)

		root.Set(5)
		assert.Equal(t, 2, sinkRuns)
	})

	t.Run("dependencies change between runs", func(t *testing.T) {
		rt := New()
		useA := NewSignalIn(rt, true)
		a := NewSignalIn(rt, "a")
		b := NewSignalIn(rt, "b")
		runs := 0
		var seen string

		NewEffectIn(rt, func() {
			if useA.Read() {
				seen = a.Read()
			} else {
				seen = b.Read()
			}
			runs++
		})
		assert.Equal(t, 1, runs)
		assert.Equal(t, "a", seen)

		useA.Set(false)
		assert.Equal(t, 2, runs)
		assert.Equal(t, "b", seen)

		b.Set("bb")
		assert.Equal(t, 3, runs)

		a.Set("aa")
		assert.Equal(t, 3, runs, "a is no longer a dependency once useA flipped false")
	})

	t.Run("batched writes only trigger one rerun", func(t *testing.T) {
		rt := New()
		x := NewSignalIn(rt, 0)
		y := NewSignalIn(rt, 0)
		runs := 0

		NewEffectIn(rt, func() {
			_ = x.Read() + y.Read()
			runs++
		})
		assert.Equal(t, 1, runs)

		_ = rt.Batch(func() {
			x.Set(1)
			y.Set(1)
		})
		assert.Equal(t, 2, runs)
	})

	t.Run("disposing an effect stops further reruns", func(t *testing.T) {
		rt := New()
		count := NewSignalIn(rt, 0)
		runs := 0
		e := NewEffectIn(rt, func() {
			count.Read()
			runs++
		})

		e.Dispose()
		count.Set(1)
		assert.Equal(t, 1, runs)
		assert.True(t, e.Disposed())
	})
}
