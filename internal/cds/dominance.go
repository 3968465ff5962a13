package cds

import "sort"

// Snapshot is an immutable view of the state the dominance decision
// reads: the node's own identity and neighbor table, taken under the
// engine's lock and handed to Decide after the lock is released —
// mirroring bfd.ApplyEvent's "pure function over a snapshot" shape.
type Snapshot struct {
	SelfMAC   MAC
	Neighbors map[MAC]NeighborRecord
}

// Decision is the outcome of a dominance check: whether the node should
// be dominant, and which rule of §4.4 produced that answer (kept only
// for observability/test assertions, never branched on by callers).
type Decision struct {
	IsDominant bool
	Rule       string
}

// orderedNeighbors returns the snapshot's neighbor MACs in a stable sort
// order. The decision is proven invariant under iteration order (§4.4
// "Tie-break determinism", P5); sorting here only makes that determinism
// observable/testable without relying on Go's randomized map iteration.
func orderedNeighbors(snap Snapshot) []MAC {
	macs := make([]MAC, 0, len(snap.Neighbors))
	for mac := range snap.Neighbors {
		macs = append(macs, mac)
	}
	sort.Slice(macs, func(i, j int) bool {
		return macs[i].String() < macs[j].String()
	})
	return macs
}

// closedNeighborhood builds S = keys(N) ∪ {self_mac}, the node's own
// one-hop closed neighborhood (§4.4).
func closedNeighborhood(snap Snapshot) map[MAC]struct{} {
	s := make(map[MAC]struct{}, len(snap.Neighbors)+1)
	for mac := range snap.Neighbors {
		s[mac] = struct{}{}
	}
	s[snap.SelfMAC] = struct{}{}
	return s
}

// isSuperset reports whether a strictly contains every key of b and has
// at least one key b lacks.
func isSuperset(a map[MAC]struct{}, b map[MAC]int) bool {
	for k := range b {
		if _, ok := a[k]; !ok {
			return false
		}
	}
	return len(a) > len(b)
}

// isSubset reports whether a's keys are all present in b and a is
// strictly smaller.
func isSubset(a map[MAC]struct{}, b map[MAC]int) bool {
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return len(a) < len(b)
}

// setsEqual reports whether a and b hold exactly the same keys.
func setsEqual(a map[MAC]struct{}, b map[MAC]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// sumRSSI sums smoothed_rssi over every neighbor in the table.
func sumRSSI(snap Snapshot) float64 {
	var total float64
	for _, rec := range snap.Neighbors {
		total += rec.SmoothedRSSI
	}
	return total
}

// sumViewValues sums the RSSI values carried by a two-hop view map.
func sumViewValues(view map[MAC]int) float64 {
	var total float64
	for _, v := range view {
		total += float64(v)
	}
	return total
}

// Decide implements the dominance decision of §4.4 over an immutable
// snapshot. It is a pure function: given the same snapshot it always
// returns the same Decision, regardless of map iteration order (P5).
func Decide(snap Snapshot) Decision {
	n := len(snap.Neighbors)

	switch {
	case n == 0:
		// Undefined: keep beaconing, caller leaves is_dominant unchanged.
		return Decision{IsDominant: false, Rule: "n=0 undefined"}

	case n == 1:
		return decideSingleNeighbor(snap)

	default:
		return decideMultiNeighbor(snap)
	}
}

// decideSingleNeighbor implements the n=1 case of §4.4.
func decideSingleNeighbor(snap Snapshot) Decision {
	var mac MAC
	var rec NeighborRecord
	for m, r := range snap.Neighbors {
		mac, rec = m, r
	}
	_ = mac

	switch {
	case rec.IsDominant:
		return Decision{IsDominant: false, Rule: "n=1 neighbor already dominant"}
	case len(rec.TwoHopView) == 2:
		return Decision{IsDominant: true, Rule: "n=1 neighbor sees only us"}
	default:
		return Decision{IsDominant: false, Rule: "n=1 edge node"}
	}
}

// decideMultiNeighbor implements the n>=2 case of §4.4: the bridging
// search over ordered pairs, the clique check, and the complete-graph
// RSSI tie-break.
func decideMultiNeighbor(snap Snapshot) Decision {
	macs := orderedNeighbors(snap)
	n := len(macs)
	closed := closedNeighborhood(snap)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			a, b := macs[i], macs[j]
			if _, sees := snap.Neighbors[b].TwoHopView[a]; sees {
				continue
			}

			// a and b do not see each other: this node bridges them.
			// Search for a third neighbor c with {a,b} subset of V(c).
			var bridges []MAC
			for _, c := range macs {
				if c == a || c == b {
					continue
				}
				view := snap.Neighbors[c].TwoHopView
				if _, okA := view[a]; !okA {
					continue
				}
				if _, okB := view[b]; !okB {
					continue
				}
				bridges = append(bridges, c)
			}

			if len(bridges) == 0 {
				return Decision{IsDominant: true, Rule: "sole bridge for disconnected pair"}
			}

			for _, c := range bridges {
				view := snap.Neighbors[c].TwoHopView
				switch {
				case isSuperset(closed, view):
					return Decision{IsDominant: true, Rule: "closed neighborhood strictly covers bridging neighbor's view"}
				case isSubset(closed, view):
					return Decision{IsDominant: false, Rule: "bridging neighbor's view strictly covers us"}
				case setsEqual(closed, view):
					ownSum, cSum := sumRSSI(snap), sumViewValues(view)
					if ownSum > cSum {
						return Decision{IsDominant: true, Rule: "tied coverage, higher RSSI sum"}
					}
					return Decision{IsDominant: false, Rule: "tied coverage, lower RSSI sum"}
				default:
					return Decision{IsDominant: true, Rule: "incomparable coverage with bridging neighbor"}
				}
			}
		}
	}

	// Every pair is mutually connected: clique check.
	for _, mac := range macs {
		rec := snap.Neighbors[mac]
		if len(rec.TwoHopView) > n+1 || rec.IsDominant {
			return Decision{IsDominant: false, Rule: "clique member is cut vertex or already dominant"}
		}
	}

	// Complete graph, no existing dominator: RSSI tie-break.
	ownSum := sumRSSI(snap)
	for _, mac := range macs {
		if ownSum < sumViewValues(snap.Neighbors[mac].TwoHopView) {
			return Decision{IsDominant: false, Rule: "complete graph, lower RSSI sum"}
		}
	}
	return Decision{IsDominant: true, Rule: "complete graph, highest RSSI sum"}
}
