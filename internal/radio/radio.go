// Package radio abstracts the half-duplex broadcast radio (spec §2.2,
// §6): send is non-blocking and best-effort, receive is asynchronous
// and delivers (frame, rssi_dbm) to a registered callback. The physical
// SX126x driver is out of scope; this package supplies the two
// reference transports a hosted simulation or test needs — UDPRadio and
// LoopbackBus — both implementing the same Radio interface a real
// driver would.
package radio

// Radio is the port the CDS engine sends frames through and receives
// frames from. SetReceiveCallback must be called before any frame
// arrives; implementations buffer nothing before it is set.
type Radio interface {
	// Send transmits frame as a broadcast. Non-blocking, best-effort: a
	// transient failure is reported via the returned error and never
	// retried by the radio layer itself (spec §7 "Send error").
	Send(frame []byte) error

	// SetReceiveCallback registers the function invoked for every frame
	// this radio receives, along with the RSSI the frame arrived at.
	SetReceiveCallback(cb func(frame []byte, rssiDBm int))

	// Close releases any resources (sockets, goroutines) held by the
	// transport.
	Close() error
}
