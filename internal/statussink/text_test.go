package statussink_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nu-iot-lab/lora-mesh-cds/internal/statussink"
)

func TestTextSinkOnBecameDominant(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := statussink.NewTextSink(&buf)
	sink.OnBecameDominant()

	out := buf.String()
	if !strings.Contains(out, "DOMINANT") {
		t.Errorf("output %q does not mention DOMINANT", out)
	}
	if strings.Count(out, "\n") != 3 {
		t.Errorf("output has %d lines, want 3", strings.Count(out, "\n"))
	}
}

func TestTextSinkOnLostDominance(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := statussink.NewTextSink(&buf)
	sink.OnLostDominance()

	out := buf.String()
	if !strings.Contains(out, "not forwarding") {
		t.Errorf("output %q does not mention the relay state", out)
	}
}

func TestNoopSinkDiscardsNotifications(t *testing.T) {
	t.Parallel()

	// NoopSink must satisfy Sink and never panic on either call.
	var sink statussink.Sink = statussink.NoopSink{}
	sink.OnBecameDominant()
	sink.OnLostDominance()
}
