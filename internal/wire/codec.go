// ABOUTME: Binary codec for the swarm envelope wire format.
// ABOUTME: Fixed big-endian layout; malformed input decodes to ErrDecode.

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrDecode reports a datagram that does not parse as a valid envelope.
// Receivers drop these and continue; garbage on an open multicast group
// is expected.
var ErrDecode = errors.New("malformed envelope")

const (
	// MaxSenderID is the longest sender id the length byte can carry.
	MaxSenderID = 255
	// MaxContent bounds content so an envelope with an ordinary sender id
	// still fits a single safe UDP datagram.
	MaxContent = 1300
	// MaxEncoded matches the transport datagram budget. Encode refuses
	// anything bigger so oversize errors surface before the socket.
	MaxEncoded = 1400

	idLen       = 16
	fixedPrefix = 1 + 1 + idLen + 1 // version, kind, id, sender length
	flagTurnSeq = 0x01
)

// Encode serializes an envelope to the wire layout:
//
//	version(1) kind(1) id(16) senderLen(1) sender(n)
//	createdAtMillis(8) flags(1) [turnSeq(4)] contentLen(4) content(n)
//
// All multi-byte integers are big-endian.
func Encode(e Envelope) ([]byte, error) {
	if e.SenderID == "" {
		return nil, fmt.Errorf("wire: sender id required")
	}
	if len(e.SenderID) > MaxSenderID {
		return nil, fmt.Errorf("wire: sender id %d bytes exceeds %d", len(e.SenderID), MaxSenderID)
	}
	if len(e.Content) > MaxContent {
		return nil, fmt.Errorf("wire: content %d bytes exceeds %d", len(e.Content), MaxContent)
	}

	size := fixedPrefix + len(e.SenderID) + 8 + 1 + 4 + len(e.Content)
	if e.HasTurn {
		size += 4
	}
	if size > MaxEncoded {
		return nil, fmt.Errorf("wire: encoded envelope %d bytes exceeds %d", size, MaxEncoded)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, e.Version, byte(e.Kind))
	buf = append(buf, e.ID[:]...)
	buf = append(buf, byte(len(e.SenderID)))
	buf = append(buf, e.SenderID...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.CreatedAt.UnixMilli()))

	var flags byte
	if e.HasTurn {
		flags |= flagTurnSeq
	}
	buf = append(buf, flags)
	if e.HasTurn {
		buf = binary.BigEndian.AppendUint32(buf, e.TurnSeq)
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.Content)))
	buf = append(buf, e.Content...)
	return buf, nil
}

// Decode parses a datagram into an envelope. Any structural problem
// (short buffer, unknown version or kind, a length running past the end,
// trailing bytes) returns an error wrapping ErrDecode.
func Decode(b []byte) (Envelope, error) {
	if len(b) < fixedPrefix {
		return Envelope{}, fmt.Errorf("%w: short buffer (%d bytes)", ErrDecode, len(b))
	}
	if b[0] != Version {
		return Envelope{}, fmt.Errorf("%w: unknown version %d", ErrDecode, b[0])
	}
	kind := Kind(b[1])
	if kind > KindHeartbeat {
		return Envelope{}, fmt.Errorf("%w: unknown kind %d", ErrDecode, b[1])
	}

	var e Envelope
	e.Version = b[0]
	e.Kind = kind
	copy(e.ID[:], b[2:2+idLen])

	senderLen := int(b[fixedPrefix-1])
	if senderLen == 0 {
		return Envelope{}, fmt.Errorf("%w: empty sender id", ErrDecode)
	}
	off := fixedPrefix
	if len(b) < off+senderLen+8+1 {
		return Envelope{}, fmt.Errorf("%w: truncated after sender length", ErrDecode)
	}
	e.SenderID = string(b[off : off+senderLen])
	off += senderLen

	millis := int64(binary.BigEndian.Uint64(b[off:]))
	e.CreatedAt = time.UnixMilli(millis).UTC()
	off += 8

	flags := b[off]
	off++
	if flags&^flagTurnSeq != 0 {
		return Envelope{}, fmt.Errorf("%w: unknown flags %#x", ErrDecode, flags)
	}
	if flags&flagTurnSeq != 0 {
		if len(b) < off+4 {
			return Envelope{}, fmt.Errorf("%w: truncated turn sequence", ErrDecode)
		}
		e.TurnSeq = binary.BigEndian.Uint32(b[off:])
		e.HasTurn = true
		off += 4
	}

	if len(b) < off+4 {
		return Envelope{}, fmt.Errorf("%w: truncated content length", ErrDecode)
	}
	contentLen := binary.BigEndian.Uint32(b[off:])
	off += 4
	if int(contentLen) != len(b)-off {
		return Envelope{}, fmt.Errorf("%w: content length %d does not match remaining %d bytes",
			ErrDecode, contentLen, len(b)-off)
	}
	e.Content = string(b[off:])
	return e, nil
}
