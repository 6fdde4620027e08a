// ABOUTME: Bounded sliding-window conversation memory for one agent.
// ABOUTME: Pinned system prompt at position 0; evicts oldest non-pinned first.

package memory

import (
	"sync"
	"time"
)

// Entry roles. Peer entries use the peer's agent id as the role.
const (
	RoleSystem = "system"
	RoleSelf   = "self"
)

// Entry is one line of conversation history.
type Entry struct {
	Role    string
	Content string
	At      time.Time
}

// Window is the ordered conversation history used to build prompts. The
// first entry is the pinned personality/system prompt and is never evicted.
// Two bounds hold after every append: total entries (pinned included) never
// exceed maxEntries, and total content bytes never exceed maxChars. The
// one exception is the pinned entry itself, which may exceed the char
// budget alone since it cannot be evicted.
type Window struct {
	mu         sync.Mutex
	entries    []Entry
	chars      int
	maxEntries int
	maxChars   int
}

// NewWindow creates a window with the given system prompt pinned at
// position 0. maxEntries counts the pinned entry.
func NewWindow(systemPrompt string, maxEntries, maxChars int) *Window {
	return &Window{
		entries:    []Entry{{Role: RoleSystem, Content: systemPrompt, At: time.Now()}},
		chars:      len(systemPrompt),
		maxEntries: maxEntries,
		maxChars:   maxChars,
	}
}

// Append adds an entry at the tail, then evicts from the oldest non-pinned
// entry forward until both bounds hold again. An entry too large for the
// budget on its own is evicted immediately, leaving just the pinned entry.
func (w *Window) Append(e Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries = append(w.entries, e)
	w.chars += len(e.Content)

	for len(w.entries) > 1 && (len(w.entries) > w.maxEntries || w.chars > w.maxChars) {
		w.chars -= len(w.entries[1].Content)
		w.entries = append(w.entries[:1], w.entries[2:]...)
	}
}

// Snapshot returns a copy of the window, pinned entry first. Callers use it
// to assemble prompts without holding any lock across the backend call.
func (w *Window) Snapshot() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Len returns the number of entries including the pinned one.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Chars returns the accumulated content size in bytes.
func (w *Window) Chars() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chars
}
