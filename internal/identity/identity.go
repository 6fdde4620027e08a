// ABOUTME: Agent identity: the id other peers see and the personality prompt.
// ABOUTME: Validates ids and resolves the personality from inline text or a file.

package identity

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultPersonality is the system prompt used when none is configured.
const DefaultPersonality = "You are a helpful AI agent. Keep responses concise and professional."

// maxIDLength bounds agent ids well under the wire format's sender limit.
const maxIDLength = 64

// ErrInvalidID is returned for agent ids that cannot go on the wire.
var ErrInvalidID = errors.New("invalid agent id")

// Identity is who this agent is on the multicast segment.
type Identity struct {
	ID          string
	Personality string
	Role        string
}

// New builds a validated identity. personality and personalityFile are
// mutually exclusive; with neither set the default personality applies.
// Role is only meaningful in debate mode and may be empty.
func New(id, personality, personalityFile, role string) (Identity, error) {
	if err := ValidateID(id); err != nil {
		return Identity{}, err
	}
	prompt, err := LoadPersonality(personality, personalityFile)
	if err != nil {
		return Identity{}, err
	}
	return Identity{ID: id, Personality: prompt, Role: role}, nil
}

// ValidateID checks that an agent id is non-empty, at most 64 characters,
// and uses only letters, digits, hyphens, and underscores.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidID)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidID, id, maxIDLength)
	}
	for _, r := range id {
		if !isIDRune(r) {
			return fmt.Errorf("%w: %q may only contain letters, digits, hyphens, and underscores", ErrInvalidID, id)
		}
	}
	return nil
}

func isIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_':
		return true
	}
	return false
}

// LoadPersonality resolves the system prompt. A file wins over inline text,
// setting both is an error, and setting neither yields DefaultPersonality.
func LoadPersonality(inline, file string) (string, error) {
	if inline != "" && file != "" {
		return "", errors.New("personality and personality_file are mutually exclusive")
	}
	if file != "" {
		content, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read personality file %q: %w", file, err)
		}
		prompt := strings.TrimSpace(string(content))
		if prompt == "" {
			return "", fmt.Errorf("personality file %q is empty", file)
		}
		return prompt, nil
	}
	if inline != "" {
		return inline, nil
	}
	return DefaultPersonality, nil
}
