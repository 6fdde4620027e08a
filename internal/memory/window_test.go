// ABOUTME: Tests for the sliding-window conversation memory.
// ABOUTME: Validates the pinned entry, both bounds, and eviction order.

package memory

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_New_PinsSystemPrompt(t *testing.T) {
	w := NewWindow("You are concise.", 10, 1000)

	snap := w.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, RoleSystem, snap[0].Role)
	assert.Equal(t, "You are concise.", snap[0].Content)
}

func TestWindow_Append_KeepsOrder(t *testing.T) {
	w := NewWindow("sys", 10, 1000)
	now := time.Now()

	w.Append(Entry{Role: "peer-a", Content: "first", At: now})
	w.Append(Entry{Role: RoleSelf, Content: "second", At: now})
	w.Append(Entry{Role: "peer-b", Content: "third", At: now})

	snap := w.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, RoleSystem, snap[0].Role)
	assert.Equal(t, "first", snap[1].Content)
	assert.Equal(t, "second", snap[2].Content)
	assert.Equal(t, "third", snap[3].Content)
}

func TestWindow_Append_EvictsOldestNonPinned(t *testing.T) {
	w := NewWindow("sys", 3, 10000)

	w.Append(Entry{Role: "peer", Content: "one"})
	w.Append(Entry{Role: "peer", Content: "two"})
	w.Append(Entry{Role: "peer", Content: "three"})

	snap := w.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, RoleSystem, snap[0].Role, "pinned entry survives eviction")
	assert.Equal(t, "two", snap[1].Content, "oldest non-pinned entry is evicted first")
	assert.Equal(t, "three", snap[2].Content)
}

func TestWindow_Append_CharBudget(t *testing.T) {
	// "sys" is 3 chars; each entry is 10. Budget 25 holds sys + two entries.
	w := NewWindow("sys", 100, 25)

	w.Append(Entry{Role: "peer", Content: strings.Repeat("a", 10)})
	w.Append(Entry{Role: "peer", Content: strings.Repeat("b", 10)})
	assert.Equal(t, 3, w.Len())

	w.Append(Entry{Role: "peer", Content: strings.Repeat("c", 10)})

	snap := w.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, strings.Repeat("b", 10), snap[1].Content)
	assert.Equal(t, strings.Repeat("c", 10), snap[2].Content)
	assert.LessOrEqual(t, w.Chars(), 25)
}

func TestWindow_Append_OversizeEntryLeavesPinnedOnly(t *testing.T) {
	w := NewWindow("sys", 100, 20)

	w.Append(Entry{Role: "peer", Content: "short"})
	w.Append(Entry{Role: "peer", Content: strings.Repeat("x", 50)})

	snap := w.Snapshot()
	require.Len(t, snap, 1, "an entry larger than the whole budget cannot be kept")
	assert.Equal(t, RoleSystem, snap[0].Role)
}

func TestWindow_Append_PinnedMayExceedBudgetAlone(t *testing.T) {
	w := NewWindow(strings.Repeat("p", 100), 10, 50)

	w.Append(Entry{Role: "peer", Content: "hello"})

	snap := w.Snapshot()
	require.Len(t, snap, 1, "only the pinned entry fits")
	assert.Equal(t, RoleSystem, snap[0].Role, "the pinned entry is never evicted")
}

func TestWindow_BoundHoldsUnderManyAppends(t *testing.T) {
	const maxEntries = 8
	w := NewWindow("sys", maxEntries, 100000)

	for i := 0; i < 100; i++ {
		w.Append(Entry{Role: "peer", Content: fmt.Sprintf("message %d", i)})
		assert.LessOrEqual(t, w.Len(), maxEntries)

		snap := w.Snapshot()
		require.NotEmpty(t, snap)
		assert.Equal(t, RoleSystem, snap[0].Role, "pinned entry stays at position 0")
	}

	snap := w.Snapshot()
	assert.Equal(t, "message 99", snap[len(snap)-1].Content, "newest entry is always kept")
}

func TestWindow_Snapshot_IsACopy(t *testing.T) {
	w := NewWindow("sys", 10, 1000)
	w.Append(Entry{Role: "peer", Content: "original"})

	snap := w.Snapshot()
	snap[1].Content = "mutated"

	assert.Equal(t, "original", w.Snapshot()[1].Content)
}
