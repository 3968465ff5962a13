package server_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nu-iot-lab/lora-mesh-cds/internal/cds"
	"github.com/nu-iot-lab/lora-mesh-cds/internal/server"
)

// fakeEngine implements server.EngineStatus with canned values.
type fakeEngine struct {
	mac         cds.MAC
	isDominant  bool
	inDiscovery bool
	neighbors   map[cds.MAC]cds.NeighborRecord
}

func (f *fakeEngine) SelfMAC() cds.MAC      { return f.mac }
func (f *fakeEngine) IsDominant() bool      { return f.isDominant }
func (f *fakeEngine) InDiscovery() bool     { return f.inDiscovery }
func (f *fakeEngine) NeighborSnapshot() map[cds.MAC]cds.NeighborRecord {
	return f.neighbors
}

func setupTestServer(t *testing.T, eng server.EngineStatus) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	path, handler := server.New(eng, logger)

	mux := http.NewServeMux()
	mux.Handle(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestStatusHandlerServesCurrentState(t *testing.T) {
	t.Parallel()

	var neighborMAC cds.MAC
	neighborMAC[5] = 0x01

	eng := &fakeEngine{
		mac:         cds.MAC{0xAA},
		isDominant:  true,
		inDiscovery: false,
		neighbors: map[cds.MAC]cds.NeighborRecord{
			neighborMAC: {
				LastBeaconAt: time.Unix(0, 0).UTC(),
				SmoothedRSSI: -55.5,
				IsDominant:   false,
			},
		},
	}

	srv := setupTestServer(t, eng)

	resp, err := http.Get(srv.URL + server.StatusPath)
	if err != nil {
		t.Fatalf("GET %s: %v", server.StatusPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		MAC           string `json:"mac"`
		IsDominant    bool   `json:"is_dominant"`
		InDiscovery   bool   `json:"in_discovery"`
		NeighborCount int    `json:"neighbor_count"`
		Neighbors     []struct {
			MAC string `json:"mac"`
		} `json:"neighbors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if body.MAC != eng.mac.String() {
		t.Errorf("mac = %q, want %q", body.MAC, eng.mac.String())
	}
	if !body.IsDominant {
		t.Error("is_dominant = false, want true")
	}
	if body.NeighborCount != 1 {
		t.Errorf("neighbor_count = %d, want 1", body.NeighborCount)
	}
}

func TestStatusHandlerRejectsNonGET(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{neighbors: map[cds.MAC]cds.NeighborRecord{}}
	srv := setupTestServer(t, eng)

	resp, err := http.Post(srv.URL+server.StatusPath, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", server.StatusPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}
