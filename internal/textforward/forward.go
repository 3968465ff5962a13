// Package textforward implements the TEXT_MESSAGE user-data path: a
// packet type outside the CDS control-plane codec that shares its
// dispatch point and forwards only through current dominators (spec
// §1 "out of scope... treated only as a consumer of is_dominant").
//
// Grounded on original_source/main.py's send_text_lora/
// process_text_message, which this package reimplements idiomatically:
// random message IDs, a hop limit, a truncated checksum, and a bounded
// dedup set so a message is not forwarded twice by the same node while
// its id is among the last 100 ids seen.
package textforward

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// PacketTag is the wire tag for a TEXT_MESSAGE frame. It is not part of
// the CDS control-plane tag space (1-3) but shares the same dispatcher.
const PacketTag = 4

// idSize is the width of a TEXT_MESSAGE's random identifier. Widened
// from the original source's inconsistent truncation of a 32-byte
// random value to a fixed 16-byte UUID-shaped id.
const idSize = 16

// checksumSize is the width of the truncated sha256 checksum carried on
// the wire, matching the original's 4-hex-char/2-byte digest.
const checksumSize = 2

// headerSize is tag(1) + id(16) + hop_limit(1) + checksum(2).
const headerSize = 1 + idSize + 1 + checksumSize

// MessageID uniquely identifies a TEXT_MESSAGE for dedup purposes.
type MessageID [idSize]byte

// Message is the decoded form of a TEXT_MESSAGE frame.
type Message struct {
	ID       MessageID
	HopLimit uint8
	Payload  []byte
}

// Radio is the minimal transport surface Forwarder needs: broadcast
// send. Satisfied by radio.Radio.
type Radio interface {
	Send(frame []byte) error
}

// DominanceSource reports whether this node currently forwards broadcast
// traffic. Satisfied by *cds.Engine.
type DominanceSource interface {
	IsDominant() bool
}

// checksum computes the truncated sha256 digest over id||hopLimit,
// matching the original's checksum scope (recomputed whenever hop_limit
// changes, since the original protocol does not cover payload bytes).
func checksum(id MessageID, hopLimit uint8) [checksumSize]byte {
	h := sha256.Sum256(append(id[:], hopLimit))
	var out [checksumSize]byte
	copy(out[:], h[:checksumSize])
	return out
}

// Encode serializes a new outbound TEXT_MESSAGE with a fresh random ID.
func Encode(hopLimit uint8, payload []byte) ([]byte, MessageID, error) {
	var id MessageID
	if _, err := rand.Read(id[:]); err != nil {
		return nil, MessageID{}, fmt.Errorf("generate message id: %w", err)
	}
	return encode(id, hopLimit, payload), id, nil
}

func encode(id MessageID, hopLimit uint8, payload []byte) []byte {
	sum := checksum(id, hopLimit)
	buf := make([]byte, headerSize+len(payload))
	buf[0] = PacketTag
	copy(buf[1:1+idSize], id[:])
	buf[1+idSize] = hopLimit
	copy(buf[1+idSize+1:headerSize], sum[:])
	copy(buf[headerSize:], payload)
	return buf
}

// Decode parses a TEXT_MESSAGE frame. It never panics on arbitrary input.
func Decode(frame []byte) (Message, error) {
	if len(frame) < headerSize {
		return Message{}, fmt.Errorf("text message: truncated header")
	}
	if frame[0] != PacketTag {
		return Message{}, fmt.Errorf("text message: unexpected tag %d", frame[0])
	}
	var msg Message
	copy(msg.ID[:], frame[1:1+idSize])
	msg.HopLimit = frame[1+idSize]
	payload := frame[headerSize:]
	msg.Payload = make([]byte, len(payload))
	copy(msg.Payload, payload)
	return msg, nil
}

// dedupCap bounds the forwarder's seen-message set, matching the
// original's message_ids list cap of 100.
const dedupCap = 100

// Forwarder decrements hop_limit and re-broadcasts a TEXT_MESSAGE once
// per id still held in its capped dedup set, only while the local node
// is dominant.
type Forwarder struct {
	radio    Radio
	dominant DominanceSource

	seen     map[MessageID]struct{}
	order    []MessageID // insertion order, for capped eviction
}

// NewForwarder constructs a Forwarder sending over r and consulting
// dominant for the current forwarding eligibility.
func NewForwarder(r Radio, dominant DominanceSource) *Forwarder {
	return &Forwarder{
		radio:    r,
		dominant: dominant,
		seen:     make(map[MessageID]struct{}, dedupCap),
	}
}

// Dispatch handles a received TEXT_MESSAGE frame: drops duplicates,
// and — only while dominant and hop_limit remains — decrements
// hop_limit, recomputes the checksum, and re-broadcasts.
func (f *Forwarder) Dispatch(frame []byte) error {
	msg, err := Decode(frame)
	if err != nil {
		return err
	}
	if f.markSeen(msg.ID) {
		return nil // already forwarded this id
	}
	if !f.dominant.IsDominant() || msg.HopLimit == 0 {
		return nil
	}

	next := encode(msg.ID, msg.HopLimit-1, msg.Payload)
	return f.radio.Send(next)
}

// markSeen records id as seen and reports whether it was already
// present. The set is capped at dedupCap, evicting the oldest entry
// first (matching the original's list-based cap).
func (f *Forwarder) markSeen(id MessageID) (alreadySeen bool) {
	if _, ok := f.seen[id]; ok {
		return true
	}
	if len(f.order) >= dedupCap {
		oldest := f.order[0]
		f.order = f.order[1:]
		delete(f.seen, oldest)
	}
	f.seen[id] = struct{}{}
	f.order = append(f.order, id)
	return false
}
