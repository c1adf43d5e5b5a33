package fingerprint

import (
	"testing"

	"github.com/conorfennell/prepdeck/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	e := domain.Entry{
		ID:         "go-7",
		Category:   " Domain-Technical ",
		Prompt:     "  What is a channel? \r\n",
		Answer:     "A typed conduit.",
		Tags:       []string{"Go", "concurrency"},
		Difficulty: 3,
		Source:     "Go notes",
	}
	expected := "domain-technical\nwhat is a channel?\na typed conduit.\nconcurrency,go\n3\ngo notes"

	assert.Equal(t, expected, Normalize(e))
}

func TestOf(t *testing.T) {
	base := domain.Entry{Category: "behavioral", Prompt: "Q", Answer: "A", Difficulty: 1}

	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, Of(base), Of(base))
		assert.Len(t, Of(base), 64)
	})

	t.Run("ignores id, case, whitespace and tag order", func(t *testing.T) {
		a := base
		a.ID = "one"
		a.Tags = []string{"x", "y"}
		b := base
		b.ID = "two"
		b.Prompt = "  q "
		b.Tags = []string{"Y", "x"}
		assert.True(t, Same(a, b))
	})

	t.Run("different content differs", func(t *testing.T) {
		other := base
		other.Answer = "B"
		assert.False(t, Same(base, other))

		harder := base
		harder.Difficulty = 2
		assert.NotEqual(t, Of(base), Of(harder))
	})
}
