package statussink

import (
	"fmt"
	"io"
	"sync"
)

// TextSink writes three-line, OLED-width-shaped text blocks to an
// io.Writer — a stand-in for the ssd1306 driver's
// show_on_screen(s1, s2, s3) used by the original hardware node.
type TextSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTextSink returns a TextSink writing to out.
func NewTextSink(out io.Writer) *TextSink {
	return &TextSink{out: out}
}

func (t *TextSink) OnBecameDominant() {
	t.show("CDS Node", "Status: DOMINANT", "forwarding broadcasts")
}

func (t *TextSink) OnLostDominance() {
	t.show("CDS Node", "Status: relay", "not forwarding")
}

// show writes the three lines as a single block, holding the lock only
// long enough to serialize the write against a concurrent transition.
func (t *TextSink) show(line1, line2, line3 string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "%s\n%s\n%s\n", line1, line2, line3)
}
