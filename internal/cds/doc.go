// Package cds implements the Connected Dominating Set election control
// plane for a LoRa mesh node: neighbor discovery, two-hop topology
// reconstruction, the dominance decision, and the timers that drive
// periodic re-election.
//
// Only dominators forward broadcast traffic; everything in this package
// exists to keep that one boolean, Engine.IsDominant, correct under a
// lossy, single-radio broadcast medium.
package cds
