// ABOUTME: Tests for agent id validation and personality resolution.

package identity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateID_Accepts(t *testing.T) {
	for _, id := range []string{
		"agent-1",
		"Agent_2",
		"a",
		"UPPER",
		"123",
		strings.Repeat("x", 64),
	} {
		assert.NoError(t, ValidateID(id), "id %q", id)
	}
}

func TestValidateID_Rejects(t *testing.T) {
	for _, id := range []string{
		"",
		"   ",
		"invalid@agent",
		"has space",
		"dot.ted",
		"日本語",
		strings.Repeat("x", 65),
	} {
		assert.ErrorIs(t, ValidateID(id), ErrInvalidID, "id %q", id)
	}
}

func TestLoadPersonality_DefaultsWhenUnset(t *testing.T) {
	prompt, err := LoadPersonality("", "")

	require.NoError(t, err)
	assert.Equal(t, DefaultPersonality, prompt)
}

func TestLoadPersonality_Inline(t *testing.T) {
	prompt, err := LoadPersonality("You are a pirate.", "")

	require.NoError(t, err)
	assert.Equal(t, "You are a pirate.", prompt)
}

func TestLoadPersonality_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.txt")
	require.NoError(t, os.WriteFile(path, []byte("You are a historian.\n"), 0o644))

	prompt, err := LoadPersonality("", path)

	require.NoError(t, err)
	assert.Equal(t, "You are a historian.", prompt)
}

func TestLoadPersonality_MissingFile(t *testing.T) {
	_, err := LoadPersonality("", filepath.Join(t.TempDir(), "absent.txt"))

	assert.Error(t, err)
}

func TestLoadPersonality_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("  \n\t"), 0o644))

	_, err := LoadPersonality("", path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestLoadPersonality_BothSetIsAnError(t *testing.T) {
	_, err := LoadPersonality("inline", "somewhere.txt")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestNew_BuildsIdentity(t *testing.T) {
	id, err := New("socrates", "", "", "affirmative")

	require.NoError(t, err)
	assert.Equal(t, "socrates", id.ID)
	assert.Equal(t, DefaultPersonality, id.Personality)
	assert.Equal(t, "affirmative", id.Role)
}

func TestNew_RejectsBadID(t *testing.T) {
	_, err := New("bad id!", "", "", "")

	assert.ErrorIs(t, err, ErrInvalidID)
}
