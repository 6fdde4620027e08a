// ABOUTME: Tests for the external speech command wrapper.

package voice

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewCommandSpeaker_SplitsArguments(t *testing.T) {
	s, err := NewCommandSpeaker("espeak -v en-us", testLogger())

	require.NoError(t, err)
	assert.Equal(t, "espeak", s.command)
	assert.Equal(t, []string{"-v", "en-us"}, s.args)
}

func TestNewCommandSpeaker_RejectsEmpty(t *testing.T) {
	_, err := NewCommandSpeaker("   ", testLogger())

	assert.Error(t, err)
}

func TestCommandSpeaker_Speak_Succeeds(t *testing.T) {
	s, err := NewCommandSpeaker("true", testLogger())
	require.NoError(t, err)

	assert.NoError(t, s.Speak(context.Background(), "hello"))
}

func TestCommandSpeaker_Speak_ReportsFailure(t *testing.T) {
	s, err := NewCommandSpeaker("false", testLogger())
	require.NoError(t, err)

	assert.Error(t, s.Speak(context.Background(), "hello"))
}

func TestCommandSpeaker_Speak_MissingBinary(t *testing.T) {
	s, err := NewCommandSpeaker("conclave-no-such-tts-binary", testLogger())
	require.NoError(t, err)

	assert.Error(t, s.Speak(context.Background(), "hello"))
}

func TestNopSpeaker_Speak(t *testing.T) {
	assert.NoError(t, NopSpeaker{}.Speak(context.Background(), "anything"))
}
