package cds

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nu-iot-lab/lora-mesh-cds/internal/radio"
	"github.com/nu-iot-lab/lora-mesh-cds/internal/statussink"
)

// Timing constants from §4.3.
const (
	bootDiscoveryDuration = 60 * time.Second
	reentryDiscoveryMin   = 30 * time.Second
	reentryDiscoveryMax   = 40 * time.Second

	discoveryBeaconMin = 5 * time.Second
	discoveryBeaconMax = 15 * time.Second
	steadyBeaconMin    = 40 * time.Second
	steadyBeaconMax    = 60 * time.Second

	leaverSweepInterval = 120 * time.Second
	dominanceCheckDelay = 60 * time.Second
)

// EngineOption configures optional Engine parameters, following the
// teacher's SessionOption functional-options pattern.
type EngineOption func(*Engine)

// WithMetrics attaches a MetricsReporter to the engine. If mr is nil the
// default no-op reporter is used.
func WithMetrics(mr MetricsReporter) EngineOption {
	return func(e *Engine) {
		if mr != nil {
			e.metrics = mr
		}
	}
}

// WithLogger attaches a structured logger. If logger is nil a discard
// logger is used.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine is the CDS state machine of §4.3-4.5: it owns EngineState,
// NeighborTable, and DominantNeighborSet behind a single mutex (§5), and
// exposes the four-entry-point facade (SendBeacon, OnBeacon,
// OnNeighborSet, IsDominant) plus Dispatch.
//
// Unlike bfd.Session (one owning goroutine, state mutated only there),
// Engine is designed for multiple concurrent callers — a beacon task and
// an event context, per §5 — so it is modeled on bfd.Manager's
// mutex-guarded-map shape instead. The lock is held only for bounded
// state mutation; it is never held across a radio Send or SendBeacon's
// suspension. Timers are armed (Scheduler.ArmOneShot/ArmPeriodic) while
// the lock is held.
type Engine struct {
	mu sync.Mutex

	selfMAC          MAC
	isDominant       bool
	inDiscovery      bool
	beaconMinDelay   time.Duration
	beaconMaxDelay   time.Duration
	neighborSetSent  bool // false until the first NEIGHBOR_SET broadcast

	neighbors *NeighborTable

	discoveryExitHandle Handle
	leaverArmed         bool
	leaverHandle        Handle
	dominanceArmed      bool
	dominanceHandle     Handle

	radio     radio.Radio
	scheduler Scheduler
	sink      statussink.Sink
	metrics   MetricsReporter
	logger    *slog.Logger
}

// NewEngine constructs an Engine for selfMAC, wired to r for transport
// and sched for timers. Start must be called to enter discovery and
// begin receiving; NewEngine alone performs no I/O.
func NewEngine(selfMAC MAC, r radio.Radio, sched Scheduler, sink statussink.Sink, opts ...EngineOption) *Engine {
	e := &Engine{
		selfMAC:        selfMAC,
		beaconMinDelay: discoveryBeaconMin,
		beaconMaxDelay: discoveryBeaconMax,
		neighbors:      NewNeighborTable(),
		radio:          r,
		scheduler:      sched,
		sink:           sink,
		metrics:        noopMetrics{},
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "cds.engine"), slog.String("self_mac", selfMAC.String()))
	return e
}

// Start enters boot discovery (§4.3) and registers Dispatch as the
// radio's receive callback. Call exactly once per Engine.
func (e *Engine) Start() {
	e.mu.Lock()
	e.enterDiscoveryLocked(bootDiscoveryDuration)
	e.mu.Unlock()
	e.metrics.DiscoveryEntered()
	e.radio.SetReceiveCallback(e.Dispatch)
}

// Stop cancels every armed timer. It does not close the radio; the
// caller owns the radio's lifecycle.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.discoveryExitHandle != nil {
		e.discoveryExitHandle.Cancel()
	}
	if e.leaverHandle != nil {
		e.leaverHandle.Cancel()
	}
	if e.dominanceHandle != nil {
		e.dominanceHandle.Cancel()
	}
}

// enterDiscoveryLocked sets discovery state and (re)arms the
// discovery-exit timer for d. Caller must hold e.mu. Re-entering
// discovery cancels and reschedules any already-armed exit timer (§5
// "Cancellation").
func (e *Engine) enterDiscoveryLocked(d time.Duration) {
	e.inDiscovery = true
	e.beaconMinDelay, e.beaconMaxDelay = discoveryBeaconMin, discoveryBeaconMax
	if e.discoveryExitHandle != nil {
		e.discoveryExitHandle.Cancel()
	}
	e.discoveryExitHandle = e.scheduler.ArmOneShot(d, e.onDiscoveryExit)
}

// -------------------------------------------------------------------------
// CDS Facade — §4.5
// -------------------------------------------------------------------------

// SendBeacon suspends for a uniform-random interval within the current
// beacon bounds, then transmits a BEACON frame. It is a cooperative
// suspend point, intended to be driven in a loop by a dedicated task
// (see RunBeaconLoop); it never busy-waits.
func (e *Engine) SendBeacon(ctx context.Context) error {
	e.mu.Lock()
	minD, maxD := e.beaconMinDelay, e.beaconMaxDelay
	e.mu.Unlock()

	timer := time.NewTimer(randomDuration(minD, maxD))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	e.mu.Lock()
	selfMAC, isDominant := e.selfMAC, e.isDominant
	e.mu.Unlock()

	frame := EncodeBeacon(selfMAC, isDominant)
	if err := e.radio.Send(frame); err != nil {
		e.metrics.SendError()
		e.logger.Warn("beacon send failed", slog.String("error", err.Error()))
		return nil
	}
	e.metrics.BeaconSent()
	return nil
}

// RunBeaconLoop calls SendBeacon repeatedly until ctx is cancelled. It
// is the dedicated beacon task of §5.
func (e *Engine) RunBeaconLoop(ctx context.Context) error {
	for {
		if err := e.SendBeacon(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// OnBeacon processes an inbound BEACON frame (§4.3 "Ingress on_beacon").
func (e *Engine) OnBeacon(frame []byte, rssiDBm int) {
	pkt, err := DecodeBeacon(frame)
	if err != nil {
		e.metrics.DecodeError()
		e.logger.Debug("dropping malformed beacon", slog.String("error", err.Error()))
		return
	}
	e.metrics.BeaconReceived()
	now := e.scheduler.Now()

	e.mu.Lock()
	wasNew := e.neighbors.UpsertBeacon(pkt.SenderMAC, rssiDBm, pkt.IsDominant, now)
	enteredDiscovery := false
	if wasNew && !e.inDiscovery {
		e.enterDiscoveryLocked(randomDuration(reentryDiscoveryMin, reentryDiscoveryMax))
		enteredDiscovery = true
	}
	n := e.neighbors.Len()
	e.mu.Unlock()

	e.metrics.NeighborCount(n)
	if enteredDiscovery {
		e.metrics.DiscoveryEntered()
	}
}

// OnNeighborSet processes an inbound NEIGHBOR_SET or UPD_NEIGHBOR_SET
// frame (§4.3 "Ingress on_neighbor_set").
func (e *Engine) OnNeighborSet(frame []byte) {
	pkt, err := DecodeNeighborSet(frame)
	if err != nil {
		e.metrics.DecodeError()
		e.logger.Debug("dropping malformed neighbor set", slog.String("error", err.Error()))
		return
	}
	e.metrics.NeighborSetReceived(pkt.Type)
	view := pkt.TwoHopView()

	e.mu.Lock()
	if !e.neighbors.Contains(pkt.SenderMAC) {
		e.mu.Unlock()
		e.logger.Debug("dropping neighbor set from unknown sender", slog.String("sender", pkt.SenderMAC.String()))
		return
	}
	e.neighbors.SetTwoHop(pkt.SenderMAC, view)
	allPresent := e.neighbors.AllTwoHopViewsPresent()
	e.mu.Unlock()

	if !allPresent {
		return
	}

	switch pkt.Type {
	case PacketNeighborSet:
		e.runDominanceCheck()
	case PacketUpdNeighborSet:
		e.armDominanceCheck(dominanceCheckDelay)
	}
}

// IsDominant reports the node's current dominance flag.
func (e *Engine) IsDominant() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isDominant
}

// InDiscovery reports whether the node is currently in discovery state,
// for the status-JSON surface.
func (e *Engine) InDiscovery() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inDiscovery
}

// SelfMAC returns the node's own MAC.
func (e *Engine) SelfMAC() MAC {
	return e.selfMAC
}

// NeighborSnapshot returns a defensive copy of the neighbor table, for
// the status-JSON surface and tests.
func (e *Engine) NeighborSnapshot() map[MAC]NeighborRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.neighbors.Snapshot()
}

// Dispatch is the Go analogue of the Python receive_lora callback's type
// switch: it peeks the wire tag and routes to OnBeacon or OnNeighborSet.
// It is the function registered with Radio.SetReceiveCallback.
func (e *Engine) Dispatch(frame []byte, rssiDBm int) {
	tag, err := PeekType(frame)
	if err != nil {
		e.metrics.DecodeError()
		return
	}
	switch tag {
	case PacketBeacon:
		e.OnBeacon(frame, rssiDBm)
	case PacketNeighborSet, PacketUpdNeighborSet:
		e.OnNeighborSet(frame)
	default:
		e.metrics.DecodeError()
	}
}

// -------------------------------------------------------------------------
// Timers — discovery exit, leaver sweep, dominance check (§4.3, §5)
// -------------------------------------------------------------------------

// onDiscoveryExit fires when the discovery window elapses. It widens the
// beacon interval, arms the leaver sweep on first exit, broadcasts the
// node's neighbor set, and runs the dominance check if every neighbor's
// two-hop view is already present.
func (e *Engine) onDiscoveryExit() {
	e.mu.Lock()
	e.inDiscovery = false
	e.beaconMinDelay, e.beaconMaxDelay = steadyBeaconMin, steadyBeaconMax
	firstExit := !e.neighborSetSent
	e.neighborSetSent = true
	if !e.leaverArmed {
		e.leaverArmed = true
		e.leaverHandle = e.scheduler.ArmPeriodic(leaverSweepInterval, e.onLeaverSweepFire)
	}
	allPresent := e.neighbors.AllTwoHopViewsPresent()
	e.mu.Unlock()

	packetType := PacketNeighborSet
	if !firstExit {
		packetType = PacketUpdNeighborSet
	}
	e.broadcastNeighborSet(packetType)

	if allPresent {
		e.runDominanceCheck()
	}
}

// onLeaverSweepFire runs the 120s leaver sweep (§4.3 "Leaver sweep").
func (e *Engine) onLeaverSweepFire() {
	e.mu.Lock()
	if e.inDiscovery {
		e.mu.Unlock()
		return
	}
	removed := e.neighbors.Expire(e.scheduler.Now())
	wasDominant := e.isDominant
	e.mu.Unlock()

	if len(removed) == 0 {
		return
	}
	for range removed {
		e.metrics.LeaverEvicted()
	}

	e.broadcastNeighborSet(PacketUpdNeighborSet)
	if wasDominant {
		e.armDominanceCheck(dominanceCheckDelay)
	}
}

// armDominanceCheck arms a one-shot dominance check after d, unless one
// is already live (I4: "arming is a no-op when one is live").
func (e *Engine) armDominanceCheck(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dominanceArmed {
		return
	}
	e.dominanceArmed = true
	e.dominanceHandle = e.scheduler.ArmOneShot(d, e.onDominanceCheckFire)
}

// onDominanceCheckFire clears its own handle before running the
// computation (§5: "A dominance-check timer that fires must first clear
// its own handle... so a subsequent request can arm a fresh timer"),
// then runs the decision.
func (e *Engine) onDominanceCheckFire() {
	e.mu.Lock()
	e.dominanceArmed = false
	e.dominanceHandle = nil
	e.mu.Unlock()
	e.runDominanceCheck()
}

// runDominanceCheck takes an immutable snapshot under the lock, decides
// outside it, then applies the result: every decision emits a BEACON
// reflecting the new is_dominant value, and a transition notifies the
// status sink (§4.4).
func (e *Engine) runDominanceCheck() {
	e.mu.Lock()
	snap := Snapshot{SelfMAC: e.selfMAC, Neighbors: e.neighbors.Snapshot()}
	e.mu.Unlock()

	decision := Decide(snap)

	e.mu.Lock()
	if len(snap.Neighbors) == 0 {
		// n=0 is undefined (§4.4): keep the current flag.
		decision.IsDominant = e.isDominant
	}
	became := !e.isDominant && decision.IsDominant
	lost := e.isDominant && !decision.IsDominant
	e.isDominant = decision.IsDominant
	selfMAC := e.selfMAC
	e.mu.Unlock()

	if became || lost {
		e.metrics.DominanceTransition(decision.IsDominant)
		e.logger.Info("dominance transition", slog.Bool("is_dominant", decision.IsDominant), slog.String("rule", decision.Rule))
	}

	frame := EncodeBeacon(selfMAC, decision.IsDominant)
	if err := e.radio.Send(frame); err != nil {
		e.metrics.SendError()
	} else {
		e.metrics.BeaconSent()
	}

	switch {
	case became:
		e.sink.OnBecameDominant()
	case lost:
		e.sink.OnLostDominance()
	}
}

// broadcastNeighborSet sends the node's current one-hop neighborhood as
// a NEIGHBOR_SET/UPD_NEIGHBOR_SET frame.
func (e *Engine) broadcastNeighborSet(packetType PacketType) {
	e.mu.Lock()
	selfMAC := e.selfMAC
	snap := e.neighbors.Snapshot()
	e.mu.Unlock()

	entries := buildNeighborEntries(snap)
	frame := EncodeNeighborSet(packetType, selfMAC, entries)
	if err := e.radio.Send(frame); err != nil {
		e.metrics.SendError()
		e.logger.Warn("neighbor set send failed", slog.String("error", err.Error()))
		return
	}
	e.metrics.NeighborSetSent(packetType)
}

// buildNeighborEntries converts a neighbor-table snapshot into the wire
// entries advertised in this node's own NEIGHBOR_SET.
func buildNeighborEntries(snap map[MAC]NeighborRecord) []NeighborEntry {
	entries := make([]NeighborEntry, 0, len(snap))
	for mac, rec := range snap {
		entries = append(entries, NeighborEntry{
			MAC:  mac,
			RSSI: int(math.Round(rec.SmoothedRSSI)),
		})
	}
	return entries
}

// randomDuration samples uniformly from [min, max) per I5. max <= min
// degenerates to returning min (defensive; every caller passes constant
// bounds with max > min).
func randomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)))
}
