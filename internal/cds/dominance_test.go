package cds_test

import (
	"testing"

	"github.com/nu-iot-lab/lora-mesh-cds/internal/cds"
)

func TestDecideNoNeighborsUndefined(t *testing.T) {
	t.Parallel()

	self := macWith(0)
	snap := cds.Snapshot{SelfMAC: self, Neighbors: map[cds.MAC]cds.NeighborRecord{}}

	got := cds.Decide(snap)
	if got.IsDominant {
		t.Errorf("IsDominant = true, want false for n=0")
	}
	if got.Rule != "n=0 undefined" {
		t.Errorf("Rule = %q, want %q", got.Rule, "n=0 undefined")
	}
}

func TestDecideSingleNeighborAlreadyDominant(t *testing.T) {
	t.Parallel()

	self, a := macWith(0), macWith(1)
	snap := cds.Snapshot{
		SelfMAC: self,
		Neighbors: map[cds.MAC]cds.NeighborRecord{
			a: {IsDominant: true, TwoHopView: map[cds.MAC]int{a: 0, self: -50}},
		},
	}

	got := cds.Decide(snap)
	if got.IsDominant {
		t.Error("IsDominant = true, want false when the lone neighbor is already dominant")
	}
	if got.Rule != "n=1 neighbor already dominant" {
		t.Errorf("Rule = %q, want %q", got.Rule, "n=1 neighbor already dominant")
	}
}

func TestDecideSingleNeighborSeesOnlyUs(t *testing.T) {
	t.Parallel()

	self, a := macWith(0), macWith(1)
	snap := cds.Snapshot{
		SelfMAC: self,
		Neighbors: map[cds.MAC]cds.NeighborRecord{
			a: {TwoHopView: map[cds.MAC]int{a: 0, self: -50}},
		},
	}

	got := cds.Decide(snap)
	if !got.IsDominant {
		t.Error("IsDominant = false, want true when the lone neighbor sees only us")
	}
	if got.Rule != "n=1 neighbor sees only us" {
		t.Errorf("Rule = %q, want %q", got.Rule, "n=1 neighbor sees only us")
	}
}

func TestDecideSingleNeighborEdgeNode(t *testing.T) {
	t.Parallel()

	self, a := macWith(0), macWith(1)

	t.Run("no two-hop view yet", func(t *testing.T) {
		t.Parallel()
		snap := cds.Snapshot{
			SelfMAC:   self,
			Neighbors: map[cds.MAC]cds.NeighborRecord{a: {}},
		}
		got := cds.Decide(snap)
		if got.IsDominant {
			t.Error("IsDominant = true, want false")
		}
		if got.Rule != "n=1 edge node" {
			t.Errorf("Rule = %q, want %q", got.Rule, "n=1 edge node")
		}
	})

	t.Run("neighbor has other neighbors", func(t *testing.T) {
		t.Parallel()
		other := macWith(9)
		snap := cds.Snapshot{
			SelfMAC: self,
			Neighbors: map[cds.MAC]cds.NeighborRecord{
				a: {TwoHopView: map[cds.MAC]int{a: 0, self: -50, other: -70}},
			},
		}
		got := cds.Decide(snap)
		if got.IsDominant {
			t.Error("IsDominant = true, want false")
		}
		if got.Rule != "n=1 edge node" {
			t.Errorf("Rule = %q, want %q", got.Rule, "n=1 edge node")
		}
	})
}

func TestDecideSoleBridgeForDisconnectedPair(t *testing.T) {
	t.Parallel()

	self, a, b := macWith(0), macWith(1), macWith(2)
	snap := cds.Snapshot{
		SelfMAC: self,
		Neighbors: map[cds.MAC]cds.NeighborRecord{
			a: {TwoHopView: map[cds.MAC]int{a: 0, self: -50}},
			b: {TwoHopView: map[cds.MAC]int{b: 0, self: -60}},
		},
	}

	got := cds.Decide(snap)
	if !got.IsDominant {
		t.Error("IsDominant = false, want true: we are the sole bridge between two disconnected neighbors")
	}
	if got.Rule != "sole bridge for disconnected pair" {
		t.Errorf("Rule = %q, want %q", got.Rule, "sole bridge for disconnected pair")
	}
}

func threeNeighborDisconnectedPairBase(self, a, b, c cds.MAC) map[cds.MAC]cds.NeighborRecord {
	return map[cds.MAC]cds.NeighborRecord{
		a: {SmoothedRSSI: -40, TwoHopView: map[cds.MAC]int{a: 0, self: -50}},
		b: {SmoothedRSSI: -40, TwoHopView: map[cds.MAC]int{b: 0, self: -60}},
		c: {SmoothedRSSI: -40, TwoHopView: map[cds.MAC]int{c: 0, a: -20, b: -25}},
	}
}

func TestDecideBridgingNeighborClosedSuperset(t *testing.T) {
	t.Parallel()

	self, a, b, c := macWith(0), macWith(1), macWith(2), macWith(3)
	neighbors := threeNeighborDisconnectedPairBase(self, a, b, c)
	snap := cds.Snapshot{SelfMAC: self, Neighbors: neighbors}

	got := cds.Decide(snap)
	if !got.IsDominant {
		t.Error("IsDominant = false, want true: our closed neighborhood strictly covers the bridging neighbor's view")
	}
	if got.Rule != "closed neighborhood strictly covers bridging neighbor's view" {
		t.Errorf("Rule = %q, want %q", got.Rule, "closed neighborhood strictly covers bridging neighbor's view")
	}
}

func TestDecideBridgingNeighborViewSuperset(t *testing.T) {
	t.Parallel()

	self, a, b, c, d := macWith(0), macWith(1), macWith(2), macWith(3), macWith(4)
	neighbors := map[cds.MAC]cds.NeighborRecord{
		a: {TwoHopView: map[cds.MAC]int{a: 0, self: -50}},
		b: {TwoHopView: map[cds.MAC]int{b: 0, self: -60}},
		c: {TwoHopView: map[cds.MAC]int{c: 0, a: -20, b: -25, self: -10, d: -5}},
	}
	snap := cds.Snapshot{SelfMAC: self, Neighbors: neighbors}

	got := cds.Decide(snap)
	if got.IsDominant {
		t.Error("IsDominant = true, want false: the bridging neighbor's view strictly covers our closed neighborhood")
	}
	if got.Rule != "bridging neighbor's view strictly covers us" {
		t.Errorf("Rule = %q, want %q", got.Rule, "bridging neighbor's view strictly covers us")
	}
}

func tiedCoverageSnapshot(selfRSSI float64) (cds.MAC, cds.Snapshot) {
	self, a, b, c := macWith(0), macWith(1), macWith(2), macWith(3)
	neighbors := map[cds.MAC]cds.NeighborRecord{
		a: {SmoothedRSSI: selfRSSI, TwoHopView: map[cds.MAC]int{a: 0, self: -50}},
		b: {SmoothedRSSI: selfRSSI, TwoHopView: map[cds.MAC]int{b: 0, self: -60}},
		c: {SmoothedRSSI: selfRSSI, TwoHopView: map[cds.MAC]int{c: 0, a: -20, b: -25, self: -10}},
	}
	return self, cds.Snapshot{SelfMAC: self, Neighbors: neighbors}
}

func TestDecideTiedCoverageHigherRSSIWins(t *testing.T) {
	t.Parallel()

	_, snap := tiedCoverageSnapshot(-10)

	got := cds.Decide(snap)
	if !got.IsDominant {
		t.Error("IsDominant = false, want true: tied coverage, our RSSI sum is higher")
	}
	if got.Rule != "tied coverage, higher RSSI sum" {
		t.Errorf("Rule = %q, want %q", got.Rule, "tied coverage, higher RSSI sum")
	}
}

func TestDecideTiedCoverageLowerRSSILoses(t *testing.T) {
	t.Parallel()

	_, snap := tiedCoverageSnapshot(-30)

	got := cds.Decide(snap)
	if got.IsDominant {
		t.Error("IsDominant = true, want false: tied coverage, our RSSI sum is lower")
	}
	if got.Rule != "tied coverage, lower RSSI sum" {
		t.Errorf("Rule = %q, want %q", got.Rule, "tied coverage, lower RSSI sum")
	}
}

func TestDecideBridgingNeighborIncomparableCoverage(t *testing.T) {
	t.Parallel()

	self, a, b, c, x := macWith(0), macWith(1), macWith(2), macWith(3), macWith(4)
	neighbors := map[cds.MAC]cds.NeighborRecord{
		a: {TwoHopView: map[cds.MAC]int{a: 0, self: -50}},
		b: {TwoHopView: map[cds.MAC]int{b: 0, self: -60}},
		c: {TwoHopView: map[cds.MAC]int{c: 0, a: -20, b: -25, x: -5}},
	}
	snap := cds.Snapshot{SelfMAC: self, Neighbors: neighbors}

	got := cds.Decide(snap)
	if !got.IsDominant {
		t.Error("IsDominant = false, want true: incomparable coverage sets default to dominant")
	}
	if got.Rule != "incomparable coverage with bridging neighbor" {
		t.Errorf("Rule = %q, want %q", got.Rule, "incomparable coverage with bridging neighbor")
	}
}

func cliqueSnapshot(selfSum float64) cds.Snapshot {
	self, a, b := macWith(0), macWith(1), macWith(2)
	neighbors := map[cds.MAC]cds.NeighborRecord{
		a: {SmoothedRSSI: selfSum / 2, TwoHopView: map[cds.MAC]int{a: 0, b: -30, self: -45}},
		b: {SmoothedRSSI: selfSum / 2, TwoHopView: map[cds.MAC]int{b: 0, a: -35, self: -50}},
	}
	return cds.Snapshot{SelfMAC: self, Neighbors: neighbors}
}

func TestDecideCliqueMemberAlreadyDominant(t *testing.T) {
	t.Parallel()

	self, a, b := macWith(0), macWith(1), macWith(2)
	neighbors := map[cds.MAC]cds.NeighborRecord{
		a: {IsDominant: true, TwoHopView: map[cds.MAC]int{a: 0, b: -30, self: -45}},
		b: {TwoHopView: map[cds.MAC]int{b: 0, a: -35, self: -50}},
	}
	snap := cds.Snapshot{SelfMAC: self, Neighbors: neighbors}

	got := cds.Decide(snap)
	if got.IsDominant {
		t.Error("IsDominant = true, want false: a clique member is already dominant")
	}
	if got.Rule != "clique member is cut vertex or already dominant" {
		t.Errorf("Rule = %q, want %q", got.Rule, "clique member is cut vertex or already dominant")
	}
}

func TestDecideCliqueMemberIsCutVertex(t *testing.T) {
	t.Parallel()

	self, a, b, extra1, extra2 := macWith(0), macWith(1), macWith(2), macWith(8), macWith(9)
	neighbors := map[cds.MAC]cds.NeighborRecord{
		a: {TwoHopView: map[cds.MAC]int{a: 0, b: -30, self: -45, extra1: -70, extra2: -80}},
		b: {TwoHopView: map[cds.MAC]int{b: 0, a: -35, self: -50}},
	}
	snap := cds.Snapshot{SelfMAC: self, Neighbors: neighbors}

	got := cds.Decide(snap)
	if got.IsDominant {
		t.Error("IsDominant = true, want false: neighbor a's view is larger than a clique admits, it is a cut vertex elsewhere")
	}
	if got.Rule != "clique member is cut vertex or already dominant" {
		t.Errorf("Rule = %q, want %q", got.Rule, "clique member is cut vertex or already dominant")
	}
}

func TestDecideCompleteGraphLowerRSSILoses(t *testing.T) {
	t.Parallel()

	snap := cliqueSnapshot(-105) // a, b each get SmoothedRSSI -52.5, own sum well below view sums

	got := cds.Decide(snap)
	if got.IsDominant {
		t.Error("IsDominant = true, want false: complete graph and our RSSI sum is lower than a neighbor's view sum")
	}
	if got.Rule != "complete graph, lower RSSI sum" {
		t.Errorf("Rule = %q, want %q", got.Rule, "complete graph, lower RSSI sum")
	}
}

func TestDecideCompleteGraphHighestRSSIWins(t *testing.T) {
	t.Parallel()

	snap := cliqueSnapshot(-20) // a, b each get SmoothedRSSI -10, own sum above every view sum

	got := cds.Decide(snap)
	if !got.IsDominant {
		t.Error("IsDominant = false, want true: complete graph and our RSSI sum is the highest")
	}
	if got.Rule != "complete graph, highest RSSI sum" {
		t.Errorf("Rule = %q, want %q", got.Rule, "complete graph, highest RSSI sum")
	}
}

// TestDecideIsOrderInvariant re-evaluates the same snapshot many times and
// requires an identical Decision every time (§4.4 "Tie-break determinism",
// P5). Decide sorts neighbor MACs internally before branching, so the
// result must not depend on Go's randomized map iteration order.
func TestDecideIsOrderInvariant(t *testing.T) {
	t.Parallel()

	self, a, b, c := macWith(0), macWith(1), macWith(2), macWith(3)
	neighbors := threeNeighborDisconnectedPairBase(self, a, b, c)
	snap := cds.Snapshot{SelfMAC: self, Neighbors: neighbors}

	first := cds.Decide(snap)
	for i := 0; i < 50; i++ {
		got := cds.Decide(snap)
		if got != first {
			t.Fatalf("iteration %d: Decide(snap) = %+v, want %+v", i, got, first)
		}
	}
}
