package radio

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

// maxFrameSize bounds a single read; LoRa frames in this protocol are at
// most a few hundred bytes (255 neighbors would already exceed any real
// radio's payload limit, so this is generous headroom, not a protocol
// limit).
const maxFrameSize = 2048

// UDPRadio simulates the broadcast LoRa medium over a UDP broadcast
// socket, for running several node processes on one host or over a LAN.
// Grounded on netio.Receiver's recvLoop/demux pattern, collapsed to a
// single always-broadcast socket since CDS has no per-session demux —
// every received frame is handed to the one registered callback.
type UDPRadio struct {
	conn      *net.UDPConn
	broadcast *net.UDPAddr
	logger    *slog.Logger

	mu sync.RWMutex
	cb func(frame []byte, rssiDBm int)

	// simulatedRSSI is reported for every received frame since plain UDP
	// carries no signal-strength metadata; it lets a multi-process
	// simulation still exercise the RSSI-dependent parts of the engine
	// with a fixed, configurable value.
	simulatedRSSI int

	closed atomic.Bool
	done   chan struct{}
}

// NewUDPRadio opens a UDP socket bound to listenAddr (e.g. ":7777") and
// configured to broadcast to broadcastAddr (e.g. "255.255.255.255:7777").
// simulatedRSSI is the RSSI value attributed to every frame received,
// since a UDP simulation has no real signal strength to report.
func NewUDPRadio(listenAddr, broadcastAddr string, simulatedRSSI int, logger *slog.Logger) (*UDPRadio, error) {
	laddr, err := net.ResolveUDPAddr("udp4", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve listen addr: %w", err)
	}
	baddr, err := net.ResolveUDPAddr("udp4", broadcastAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve broadcast addr: %w", err)
	}

	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}

	r := &UDPRadio{
		conn:          conn,
		broadcast:     baddr,
		simulatedRSSI: simulatedRSSI,
		logger:        logger.With(slog.String("component", "radio.udp")),
		done:          make(chan struct{}),
	}
	go r.recvLoop()
	return r, nil
}

// Send broadcasts frame to the configured broadcast address.
func (r *UDPRadio) Send(frame []byte) error {
	if r.closed.Load() {
		return errors.New("udp radio: send on closed radio")
	}
	_, err := r.conn.WriteToUDP(frame, r.broadcast)
	if err != nil {
		return fmt.Errorf("udp radio send: %w", err)
	}
	return nil
}

// SetReceiveCallback registers cb as the frame-delivery callback.
func (r *UDPRadio) SetReceiveCallback(cb func(frame []byte, rssiDBm int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cb = cb
}

// Close stops the receive loop and closes the underlying socket.
func (r *UDPRadio) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := r.conn.Close()
	<-r.done
	return err
}

// recvLoop reads datagrams until the socket is closed, dispatching each
// to the registered callback. Errors from individual reads are logged
// but never stop the loop; only a closed socket terminates it.
func (r *UDPRadio) recvLoop() {
	defer close(r.done)
	buf := make([]byte, maxFrameSize)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if r.closed.Load() {
				return
			}
			r.logger.Warn("recv error", slog.String("error", err.Error()))
			continue
		}

		r.mu.RLock()
		cb := r.cb
		rssi := r.simulatedRSSI
		r.mu.RUnlock()
		if cb == nil {
			continue
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])
		cb(frame, rssi)
	}
}
