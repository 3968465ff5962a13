package radio

import "sync"

// RSSIModel reports the signal strength a frame sent by sender would
// arrive at receiver, in dBm. Tests use it to encode arbitrary topology
// (including asymmetric or absent links) without running real radios.
type RSSIModel func(sender, receiver string) (rssiDBm int, reachable bool)

// LoopbackBus is an in-memory shared medium connecting several
// LoopbackRadio endpoints. Every Send on one endpoint is delivered
// synchronously to every other attached endpoint's callback, with RSSI
// supplied by the bus's RSSIModel — this is what the S1 and S2 scenario
// tests drive instead of real sockets.
type LoopbackBus struct {
	model RSSIModel

	mu      sync.RWMutex
	members map[string]*LoopbackRadio
}

// NewLoopbackBus returns a bus using model to compute per-link RSSI and
// reachability.
func NewLoopbackBus(model RSSIModel) *LoopbackBus {
	return &LoopbackBus{
		model:   model,
		members: make(map[string]*LoopbackRadio),
	}
}

// Attach creates and registers a new endpoint identified by id. id must
// be unique on this bus; Attach panics on a duplicate id since that
// indicates a test-setup bug, not a runtime condition.
func (b *LoopbackBus) Attach(id string) *LoopbackRadio {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.members[id]; exists {
		panic("radio: duplicate loopback id " + id)
	}
	r := &LoopbackRadio{id: id, bus: b}
	b.members[id] = r
	return r
}

// Detach removes an endpoint from the bus; further Sends from it have no
// listeners and further frames addressed to it are not delivered.
func (b *LoopbackBus) Detach(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.members, id)
}

// dispatch delivers frame from sender to every other attached member
// reachable per the bus's RSSIModel. The member snapshot is taken under
// the lock and callbacks are invoked after releasing it, so a callback
// that calls Send/Attach/Detach on the same bus never deadlocks.
func (b *LoopbackBus) dispatch(senderID string, frame []byte) {
	b.mu.RLock()
	type delivery struct {
		cb   func(frame []byte, rssiDBm int)
		rssi int
	}
	var deliveries []delivery
	for id, member := range b.members {
		if id == senderID {
			continue
		}
		rssi, reachable := b.model(senderID, id)
		if !reachable {
			continue
		}
		member.mu.RLock()
		cb := member.cb
		member.mu.RUnlock()
		if cb == nil {
			continue
		}
		deliveries = append(deliveries, delivery{cb: cb, rssi: rssi})
	}
	b.mu.RUnlock()

	cp := make([]byte, len(frame))
	copy(cp, frame)
	for _, d := range deliveries {
		d.cb(cp, d.rssi)
	}
}

// LoopbackRadio is one endpoint of a LoopbackBus. It implements Radio.
type LoopbackRadio struct {
	id  string
	bus *LoopbackBus

	mu sync.RWMutex
	cb func(frame []byte, rssiDBm int)
}

// Send broadcasts frame to every other endpoint on the bus.
func (r *LoopbackRadio) Send(frame []byte) error {
	r.bus.dispatch(r.id, frame)
	return nil
}

// SetReceiveCallback registers cb as the frame-delivery callback.
func (r *LoopbackRadio) SetReceiveCallback(cb func(frame []byte, rssiDBm int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cb = cb
}

// Close detaches this endpoint from its bus.
func (r *LoopbackRadio) Close() error {
	r.bus.Detach(r.id)
	return nil
}
