package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Context is scoped through the ambient Current() runtime rather than an
// explicit Runtime, so these tests drive it through the package-level
// owner API instead of constructing a Runtime directly.

func TestContext(t *testing.T) {
	t.Run("Value falls back to the initial value outside any Set", func(t *testing.T) {
		theme := NewContext("light")
		owner := NewOwner()

		var seen string
		_ = owner.Run(func() error {
			seen = theme.Value()
			return nil
		})
		assert.Equal(t, "light", seen)
	})

	t.Run("Set overrides the value for the current owner and its descendants", func(t *testing.T) {
		theme := NewContext("light")
		owner := NewOwner()

		var seenInChild string
		_ = owner.Run(func() error {
			theme.Set("dark")
			child := NewOwner()
			_ = child.Run(func() error {
				seenInChild = theme.Value()
				return nil
			})
			return nil
		})
		assert.Equal(t, "dark", seenInChild)
	})

	t.Run("a descendant override does not leak back up to the ancestor", func(t *testing.T) {
		theme := NewContext("light")
		parent := NewOwner()

		_ = parent.Run(func() error {
			child := NewOwner()
			_ = child.Run(func() error {
				theme.Set("dark")
				return nil
			})
			return nil
		})

		var seenInParent string
		_ = parent.Run(func() error {
			seenInParent = theme.Value()
			return nil
		})
		assert.Equal(t, "light", seenInParent)
	})
}
