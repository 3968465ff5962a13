package cds

import "time"

// leaverTimeout is the silence duration after which a neighbor record is
// evicted by the leaver sweep (§3 Lifecycles).
const leaverTimeout = 120 * time.Second

// NeighborRecord is the value owned exclusively by NeighborTable for a
// single neighbor MAC (§3).
type NeighborRecord struct {
	// LastBeaconAt is the monotonic timestamp of the most recently
	// received beacon from this neighbor.
	LastBeaconAt time.Time

	// TwoHopView is nil until this neighbor's NEIGHBOR_SET/
	// UPD_NEIGHBOR_SET has arrived. Once present it always contains the
	// neighbor's own MAC at RSSI 0 (I2), plus one entry per each of that
	// neighbor's own neighbors.
	TwoHopView map[MAC]int

	// IsDominant mirrors the dominance flag last advertised in this
	// neighbor's beacon.
	IsDominant bool

	// SmoothedRSSI is the EWMA over received beacon RSSIs.
	SmoothedRSSI float64
}

// HasTwoHopView reports whether this neighbor's NEIGHBOR_SET has arrived.
func (r NeighborRecord) HasTwoHopView() bool {
	return r.TwoHopView != nil
}

// NeighborTable is a mapping from neighbor MAC to NeighborRecord (§4.2).
// It is not safe for concurrent use on its own; Engine guards it with a
// single mutex per §5.
type NeighborTable struct {
	records map[MAC]*NeighborRecord
	// dominant mirrors which MACs currently carry IsDominant = true,
	// maintained in lockstep so DominantCount never has to scan the full
	// table (I1).
	dominant map[MAC]struct{}
}

// NewNeighborTable returns an empty table.
func NewNeighborTable() *NeighborTable {
	return &NeighborTable{
		records:  make(map[MAC]*NeighborRecord),
		dominant: make(map[MAC]struct{}),
	}
}

// UpsertBeacon creates a record with TwoHopView = nil on first sight of
// mac; on an existing record it refreshes the timestamp, dominance flag,
// and smoothed RSSI using s <- 0.7*s + 0.3*rssi. Returns true if mac was
// previously unknown to the table.
func (t *NeighborTable) UpsertBeacon(mac MAC, rssiDBm int, isDominant bool, now time.Time) (wasNew bool) {
	rec, ok := t.records[mac]
	if !ok {
		rec = &NeighborRecord{SmoothedRSSI: float64(rssiDBm)}
		t.records[mac] = rec
		wasNew = true
	} else {
		rec.SmoothedRSSI = ewmaRSSI(rec.SmoothedRSSI, float64(rssiDBm))
	}
	rec.LastBeaconAt = now
	t.setDominance(mac, rec, isDominant)
	return wasNew
}

// setDominance updates rec.IsDominant and keeps the dominant index (I1)
// in lockstep.
func (t *NeighborTable) setDominance(mac MAC, rec *NeighborRecord, isDominant bool) {
	rec.IsDominant = isDominant
	if isDominant {
		t.dominant[mac] = struct{}{}
	} else {
		delete(t.dominant, mac)
	}
}

// SetTwoHop assigns view into mac's two-hop view. Returns false without
// effect if mac is not present in the table — a BEACON must arrive
// before a NEIGHBOR_SET is accepted from that sender (§4.3 step 2, §7
// "Unknown-sender NEIGHBOR_SET").
func (t *NeighborTable) SetTwoHop(mac MAC, view map[MAC]int) bool {
	rec, ok := t.records[mac]
	if !ok {
		return false
	}
	rec.TwoHopView = view
	return true
}

// Expire removes records whose LastBeaconAt is older than leaverTimeout
// relative to now, returning the set of MACs removed (§4.2, §8 P4). It
// collects expired MACs in a first pass and removes them in a second,
// never mutating the map while ranging over it.
func (t *NeighborTable) Expire(now time.Time) []MAC {
	var stale []MAC
	for mac, rec := range t.records {
		if rec.LastBeaconAt.Add(leaverTimeout).Before(now) {
			stale = append(stale, mac)
		}
	}
	for _, mac := range stale {
		delete(t.records, mac)
		delete(t.dominant, mac)
	}
	return stale
}

// Contains reports whether mac has a record in the table.
func (t *NeighborTable) Contains(mac MAC) bool {
	_, ok := t.records[mac]
	return ok
}

// Len returns the number of neighbor records.
func (t *NeighborTable) Len() int {
	return len(t.records)
}

// Get returns a copy of mac's record and whether it was present.
func (t *NeighborTable) Get(mac MAC) (NeighborRecord, bool) {
	rec, ok := t.records[mac]
	if !ok {
		return NeighborRecord{}, false
	}
	return *rec, true
}

// Snapshot returns a defensive copy of every record in the table, keyed
// by MAC, for use by the pure dominance-decision function and by the
// status-JSON endpoint.
func (t *NeighborTable) Snapshot() map[MAC]NeighborRecord {
	out := make(map[MAC]NeighborRecord, len(t.records))
	for mac, rec := range t.records {
		cp := *rec
		if rec.TwoHopView != nil {
			cp.TwoHopView = make(map[MAC]int, len(rec.TwoHopView))
			for k, v := range rec.TwoHopView {
				cp.TwoHopView[k] = v
			}
		}
		out[mac] = cp
	}
	return out
}

// DominantCount returns the number of neighbors currently marked
// dominant (the size of DominantNeighborSet, I1).
func (t *NeighborTable) DominantCount() int {
	return len(t.dominant)
}

// AllTwoHopViewsPresent reports whether every record in the table has a
// non-nil TwoHopView (§4.3 step 3: "if any neighbor still has
// two_hop_view = None, return").
func (t *NeighborTable) AllTwoHopViewsPresent() bool {
	for _, rec := range t.records {
		if rec.TwoHopView == nil {
			return false
		}
	}
	return true
}
