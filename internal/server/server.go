// Package server implements the CDS node's status HTTP endpoint.
//
// The teacher exposes its control surface over ConnectRPC, generated
// from a protobuf service definition. A CDS node has no RPC surface to
// speak of, only a read-only snapshot of election state, so this
// package trades the codegen-dependent ConnectRPC stack for a plain
// net/http + encoding/json handler in the same spirit: a small adapter
// between an HTTP concern and the internal domain, with logging and
// panic recovery wrapped around it the way the teacher wraps its RPC
// handlers with interceptors.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/nu-iot-lab/lora-mesh-cds/internal/cds"
)

// StatusPath is the URL path the status handler is mounted at.
const StatusPath = "/status"

// EngineStatus is the subset of *cds.Engine the status endpoint reads.
// Declaring it here rather than depending on the concrete type keeps
// the server package testable against a fake.
type EngineStatus interface {
	SelfMAC() cds.MAC
	IsDominant() bool
	InDiscovery() bool
	NeighborSnapshot() map[cds.MAC]cds.NeighborRecord
}

// NeighborView is the JSON shape of a single neighbor table entry, shared
// by the status handler and cdsctl's status/monitor commands.
type NeighborView struct {
	MAC          string  `json:"mac"`
	IsDominant   bool    `json:"is_dominant"`
	SmoothedRSSI float64 `json:"smoothed_rssi"`
	LastBeaconAt string  `json:"last_beacon_at"`
	HasTwoHop    bool    `json:"has_two_hop_view"`
}

// StatusView is the JSON shape served at StatusPath, shared by the status
// handler and cdsctl's status/monitor commands.
type StatusView struct {
	MAC           string         `json:"mac"`
	IsDominant    bool           `json:"is_dominant"`
	InDiscovery   bool           `json:"in_discovery"`
	NeighborCount int            `json:"neighbor_count"`
	Neighbors     []NeighborView `json:"neighbors"`
}

// StatusHandler serves the current CDS election state as JSON.
type StatusHandler struct {
	engine EngineStatus
	logger *slog.Logger
}

// New builds the status HTTP handler and returns the path it should be
// mounted at, mirroring the teacher's server.New(mgr, logger) -> (path,
// handler) shape.
func New(engine EngineStatus, logger *slog.Logger) (string, http.Handler) {
	h := &StatusHandler{
		engine: engine,
		logger: logger.With(slog.String("component", "server")),
	}

	var handler http.Handler = h
	handler = RecoveryMiddleware(h.logger)(handler)
	handler = LoggingMiddleware(h.logger)(handler)

	return StatusPath, handler
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := h.engine.NeighborSnapshot()
	neighbors := make([]NeighborView, 0, len(snap))
	for mac, rec := range snap {
		neighbors = append(neighbors, NeighborView{
			MAC:          mac.String(),
			IsDominant:   rec.IsDominant,
			SmoothedRSSI: rec.SmoothedRSSI,
			LastBeaconAt: rec.LastBeaconAt.Format(time.RFC3339),
			HasTwoHop:    rec.HasTwoHopView(),
		})
	}

	view := StatusView{
		MAC:           h.engine.SelfMAC().String(),
		IsDominant:    h.engine.IsDominant(),
		InDiscovery:   h.engine.InDiscovery(),
		NeighborCount: len(neighbors),
		Neighbors:     neighbors,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		h.logger.Error("failed to encode status response", slog.String("error", err.Error()))
	}
}
