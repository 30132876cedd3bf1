package memory_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"companion-server/internal/memory"
)

func TestReviseMemory(t *testing.T) {
	current := "The user's name is Pavel. He works as a backend engineer and likes hiking."

	t.Run("Accepts a factual candidate", func(t *testing.T) {
		candidate := "The user's name is Pavel. He works as a backend engineer, likes hiking and recently adopted a cat."
		updated, reason := memory.ReviseMemory(candidate, current)

		assert.Equal(t, candidate, updated)
		assert.Empty(t, reason)
	})

	t.Run("Rejects candidate over the length cap", func(t *testing.T) {
		candidate := strings.Repeat("The user likes very long stories. ", 40)
		updated, reason := memory.ReviseMemory(candidate, current)

		assert.Equal(t, current, updated)
		assert.Contains(t, reason, "too long")
	})

	t.Run("Short candidate is accepted only for the first extraction", func(t *testing.T) {
		updated, reason := memory.ReviseMemory("Pavel.", "")
		assert.Equal(t, "Pavel.", updated)
		assert.Empty(t, reason)

		updated, reason = memory.ReviseMemory("Pavel.", current)
		assert.Equal(t, current, updated)
		assert.Contains(t, reason, "too short")
	})

	t.Run("Rejects looping repetition", func(t *testing.T) {
		candidate := strings.Repeat("The user likes coffee. ", 3)
		updated, reason := memory.ReviseMemory(candidate, current)

		assert.Equal(t, current, updated)
		assert.Contains(t, reason, "repeated")
	})

	t.Run("Rejects role confusion", func(t *testing.T) {
		candidate := "The user is an AI assistant that generates stories. He likes hiking and coffee in the morning."
		updated, reason := memory.ReviseMemory(candidate, current)

		assert.Equal(t, current, updated)
		assert.Contains(t, reason, "role confusion")
	})

	t.Run("Rejects vague boilerplate", func(t *testing.T) {
		candidate := "The user enjoys talking. He seems friendly. They had a nice conversation."
		updated, reason := memory.ReviseMemory(candidate, current)

		assert.Equal(t, current, updated)
		assert.Contains(t, reason, "vague")
	})

	t.Run("Rejection is idempotent over current memory", func(t *testing.T) {
		first, _ := memory.ReviseMemory("null", current)
		second, _ := memory.ReviseMemory("null", first)

		assert.Equal(t, current, first)
		assert.Equal(t, first, second)
	})
}
