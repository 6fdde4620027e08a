// ABOUTME: Turns the conversation window into the message list a backend expects.
// ABOUTME: Peer lines carry their sender's name so the model can tell voices apart.

package agent

import (
	"fmt"

	"github.com/2389/conclave/internal/llm"
	"github.com/2389/conclave/internal/memory"
)

// buildPrompt maps window entries onto backend roles. The pinned entry
// becomes the system message and this agent's own lines become assistant
// turns. Everything else is a user turn prefixed with the speaker's id,
// matching how the console renders the room.
func buildPrompt(entries []memory.Entry) []llm.Message {
	messages := make([]llm.Message, 0, len(entries))
	for _, e := range entries {
		switch e.Role {
		case memory.RoleSystem:
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: e.Content})
		case memory.RoleSelf:
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: e.Content})
		default:
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Content: fmt.Sprintf("%s: %s", e.Role, e.Content),
			})
		}
	}
	return messages
}
