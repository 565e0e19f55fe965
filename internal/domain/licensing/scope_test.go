package licensing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScope(t *testing.T) {
	t.Run("zero value matches nothing", func(t *testing.T) {
		var s Scope
		assert.True(t, s.IsEmpty())
		assert.False(t, s.IsUnrestricted())
		assert.False(t, s.Allows("cb_x"))
	})

	t.Run("no keys matches nothing", func(t *testing.T) {
		s := MatchKeys()
		assert.True(t, s.IsEmpty())
		assert.Empty(t, s.Keys())

		s = MatchKeys("", "")
		assert.True(t, s.IsEmpty())
	})

	t.Run("match all", func(t *testing.T) {
		s := MatchAll()
		assert.True(t, s.IsUnrestricted())
		assert.False(t, s.IsEmpty())
		assert.Nil(t, s.Keys())
		assert.True(t, s.Allows("anything"))
	})

	t.Run("keys are deduplicated and sorted", func(t *testing.T) {
		s := MatchKeys("cb_2", "abc123", "cb_2")
		assert.Equal(t, []string{"abc123", "cb_2"}, s.Keys())
		assert.True(t, s.Allows("abc123"))
		assert.False(t, s.Allows("cb_3"))
	})

	t.Run("keys slice is a copy", func(t *testing.T) {
		s := MatchKeys("cb_1")
		k := s.Keys()
		k[0] = "mutated"
		assert.True(t, s.Allows("cb_1"))
	})
}
