package cds

import "fmt"

// -------------------------------------------------------------------------
// Wire Format — §4.1
// -------------------------------------------------------------------------

// PacketType identifies the control-plane packet carried in the first
// wire byte.
type PacketType uint8

const (
	// PacketBeacon announces a node's presence and current dominance flag.
	PacketBeacon PacketType = 1

	// PacketNeighborSet is the first-exit broadcast of a node's full
	// one-hop neighborhood, used to seed peers' two-hop views.
	PacketNeighborSet PacketType = 2

	// PacketUpdNeighborSet is a subsequent neighborhood broadcast
	// (re-entered discovery, or a leaver sweep eviction).
	PacketUpdNeighborSet PacketType = 3
)

// String returns the human-readable name of the packet type.
func (t PacketType) String() string {
	switch t {
	case PacketBeacon:
		return "BEACON"
	case PacketNeighborSet:
		return "NEIGHBOR_SET"
	case PacketUpdNeighborSet:
		return "UPD_NEIGHBOR_SET"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// neighborEntrySize is the wire size of one (MAC, rssi magnitude) pair
// in a NEIGHBOR_SET/UPD_NEIGHBOR_SET payload.
const neighborEntrySize = MACSize + 1

// beaconPacketSize is the total wire size of a BEACON frame:
// tag(1) + sender MAC(6) + is_dominant(1).
const beaconPacketSize = 1 + MACSize + 1

// BeaconPacket is the decoded form of a BEACON frame (§4.1).
type BeaconPacket struct {
	SenderMAC  MAC
	IsDominant bool
}

// NeighborEntry is one (MAC, RSSI) pair inside a NEIGHBOR_SET /
// UPD_NEIGHBOR_SET payload, decoded from its on-wire unsigned magnitude.
type NeighborEntry struct {
	MAC  MAC
	RSSI int // signed dBm, already negated from the wire magnitude
}

// NeighborSetPacket is the decoded form of a NEIGHBOR_SET or
// UPD_NEIGHBOR_SET frame. Type records which of the two tags produced
// it, since the two share an identical layout but drive different
// engine behavior (§4.3).
type NeighborSetPacket struct {
	Type      PacketType // PacketNeighborSet or PacketUpdNeighborSet
	SenderMAC MAC
	Neighbors []NeighborEntry
}

// EncodeBeacon serializes a BEACON frame per §4.1.
func EncodeBeacon(sender MAC, isDominant bool) []byte {
	buf := make([]byte, beaconPacketSize)
	buf[0] = byte(PacketBeacon)
	copy(buf[1:1+MACSize], sender[:])
	if isDominant {
		buf[1+MACSize] = 1
	}
	return buf
}

// EncodeNeighborSet serializes a NEIGHBOR_SET or UPD_NEIGHBOR_SET frame.
// The sender's own MAC is never included among entries (§4.1).
func EncodeNeighborSet(packetType PacketType, sender MAC, entries []NeighborEntry) []byte {
	buf := make([]byte, 1+MACSize+len(entries)*neighborEntrySize)
	buf[0] = byte(packetType)
	copy(buf[1:1+MACSize], sender[:])
	off := 1 + MACSize
	for _, e := range entries {
		copy(buf[off:off+MACSize], e.MAC[:])
		buf[off+MACSize] = dBmToRSSIMagnitude(e.RSSI)
		off += neighborEntrySize
	}
	return buf
}

// PeekType reads only the type tag from a frame without validating the
// rest of it, for use by a dispatcher deciding which decoder to call.
// Returns ErrTruncatedHeader for an empty frame.
func PeekType(frame []byte) (PacketType, error) {
	if len(frame) < 1 {
		return 0, ErrTruncatedHeader
	}
	return PacketType(frame[0]), nil
}

// DecodeBeacon decodes a BEACON frame. It never panics on arbitrary
// input (P3): all length and tag checks precede any indexing.
func DecodeBeacon(frame []byte) (BeaconPacket, error) {
	if len(frame) < beaconPacketSize {
		return BeaconPacket{}, ErrTruncatedHeader
	}
	if PacketType(frame[0]) != PacketBeacon {
		return BeaconPacket{}, fmt.Errorf("decode beacon: %w", ErrUnknownTag)
	}
	var pkt BeaconPacket
	copy(pkt.SenderMAC[:], frame[1:1+MACSize])
	pkt.IsDominant = frame[1+MACSize] != 0
	return pkt, nil
}

// DecodeNeighborSet decodes a NEIGHBOR_SET or UPD_NEIGHBOR_SET frame.
// Decoding rejects frames whose length past the header is not a
// multiple of 7 (§4.1) and never panics on arbitrary input (P3).
func DecodeNeighborSet(frame []byte) (NeighborSetPacket, error) {
	if len(frame) < 1+MACSize {
		return NeighborSetPacket{}, ErrTruncatedHeader
	}
	tag := PacketType(frame[0])
	if tag != PacketNeighborSet && tag != PacketUpdNeighborSet {
		return NeighborSetPacket{}, fmt.Errorf("decode neighbor set: %w", ErrUnknownTag)
	}

	payload := frame[1+MACSize:]
	if len(payload)%neighborEntrySize != 0 {
		return NeighborSetPacket{}, ErrMisalignedPayload
	}

	pkt := NeighborSetPacket{Type: tag}
	copy(pkt.SenderMAC[:], frame[1:1+MACSize])

	count := len(payload) / neighborEntrySize
	pkt.Neighbors = make([]NeighborEntry, count)
	for i := range count {
		off := i * neighborEntrySize
		var e NeighborEntry
		copy(e.MAC[:], payload[off:off+MACSize])
		e.RSSI = rssiMagnitudeToDBm(payload[off+MACSize])
		pkt.Neighbors[i] = e
	}
	return pkt, nil
}

// TwoHopView builds the two-hop view map a NEIGHBOR_SET packet conveys:
// the sender itself at RSSI 0 (sentinel for self, I2), plus one entry
// per listed neighbor at its advertised RSSI.
func (p NeighborSetPacket) TwoHopView() map[MAC]int {
	view := make(map[MAC]int, len(p.Neighbors)+1)
	view[p.SenderMAC] = 0
	for _, e := range p.Neighbors {
		view[e.MAC] = e.RSSI
	}
	return view
}
