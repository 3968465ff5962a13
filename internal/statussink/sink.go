// Package statussink implements the status-display interface the CDS
// engine notifies on a dominance transition (spec §6 "Status sink").
// The reference implementation paints an OLED blue on becoming dominant
// and clears it on losing dominance; this package keeps that interface
// and supplies a text stand-in plus a no-op, side-effect-free default.
package statussink

// Sink receives dominance transition notifications. Side-effect-free to
// the CDS core: the engine never blocks on a Sink call and never
// branches on its return value.
type Sink interface {
	// OnBecameDominant is invoked after the engine's is_dominant flag
	// transitions false -> true.
	OnBecameDominant()

	// OnLostDominance is invoked after the engine's is_dominant flag
	// transitions true -> false.
	OnLostDominance()
}

// NoopSink discards every notification. The default when a node is
// built without a display.
type NoopSink struct{}

func (NoopSink) OnBecameDominant() {}
func (NoopSink) OnLostDominance()  {}
