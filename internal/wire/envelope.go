// ABOUTME: Envelope types for messages exchanged between swarm agents.
// ABOUTME: Defines message kinds and constructors that stamp ids and timestamps.

package wire

import (
	"time"

	"github.com/google/uuid"
)

// Version is the wire format version. Decoders reject any other value
// rather than guessing at the layout.
const Version = 1

// Kind identifies the semantic type of an envelope.
type Kind uint8

const (
	// KindChat is a free-form conversational message.
	KindChat Kind = iota
	// KindDebateTurn is a message claiming a slot in a structured debate.
	KindDebateTurn
	// KindHeartbeat is a content-free presence beacon.
	KindHeartbeat
)

// String returns a short name for logging.
func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindDebateTurn:
		return "debate-turn"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Envelope is one wire-level message unit. The id is generated once at
// composition time and never reused; timestamps carry millisecond precision
// so Decode(Encode(e)) reproduces e exactly.
type Envelope struct {
	Version   uint8
	Kind      Kind
	ID        uuid.UUID
	SenderID  string
	CreatedAt time.Time
	TurnSeq   uint32
	HasTurn   bool
	Content   string
}

// NewChat builds a chat envelope from this sender with a fresh id.
func NewChat(senderID, content string) Envelope {
	return Envelope{
		Version:   Version,
		Kind:      KindChat,
		ID:        uuid.New(),
		SenderID:  senderID,
		CreatedAt: now(),
		Content:   content,
	}
}

// NewDebateTurn builds a debate envelope claiming the given turn sequence.
func NewDebateTurn(senderID, content string, seq uint32) Envelope {
	return Envelope{
		Version:   Version,
		Kind:      KindDebateTurn,
		ID:        uuid.New(),
		SenderID:  senderID,
		CreatedAt: now(),
		TurnSeq:   seq,
		HasTurn:   true,
		Content:   content,
	}
}

// NewHeartbeat builds a content-free presence envelope.
func NewHeartbeat(senderID string) Envelope {
	return Envelope{
		Version:   Version,
		Kind:      KindHeartbeat,
		ID:        uuid.New(),
		SenderID:  senderID,
		CreatedAt: now(),
	}
}

// now returns the wall clock at the precision the wire format carries.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
