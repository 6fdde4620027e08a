// ABOUTME: Optional speech synthesis for incoming conversation lines.
// ABOUTME: Shells out to a local TTS command such as say or espeak.

package voice

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// speakTimeout bounds one utterance. Long replies get cut off rather than
// wedging the speaker goroutine.
const speakTimeout = 30 * time.Second

// Speaker voices a reply out loud.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// NopSpeaker stays silent. Used when voice is disabled.
type NopSpeaker struct{}

func (NopSpeaker) Speak(context.Context, string) error { return nil }

// CommandSpeaker pipes text to an external synthesis command. The configured
// string may carry arguments, e.g. "espeak -v en-us".
type CommandSpeaker struct {
	command string
	args    []string
	logger  *slog.Logger
}

// NewCommandSpeaker builds a speaker from a command line string.
func NewCommandSpeaker(command string, logger *slog.Logger) (*CommandSpeaker, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty voice command")
	}
	return &CommandSpeaker{
		command: parts[0],
		args:    parts[1:],
		logger:  logger.With("component", "voice"),
	}, nil
}

// Speak runs the command with the text appended as the final argument.
func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, speakTimeout)
	defer cancel()

	args := make([]string, 0, len(s.args)+1)
	args = append(args, s.args...)
	args = append(args, text)

	cmd := exec.CommandContext(ctx, s.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %s: %w", s.command, msg, err)
		}
		return fmt.Errorf("%s: %w", s.command, err)
	}

	s.logger.Debug("spoke reply", "chars", len(text))
	return nil
}
