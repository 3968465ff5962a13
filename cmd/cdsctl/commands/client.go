package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nu-iot-lab/lora-mesh-cds/internal/server"
)

// ErrUnexpectedStatus indicates the status endpoint replied with a
// non-200 HTTP status.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// fetchStatus retrieves and decodes the status view from addr's status
// endpoint.
func fetchStatus(ctx context.Context, addr string) (server.StatusView, error) {
	url := "http://" + addr + server.StatusPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return server.StatusView{}, fmt.Errorf("build status request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return server.StatusView{}, fmt.Errorf("fetch status from %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return server.StatusView{}, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, addr)
	}

	var view server.StatusView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return server.StatusView{}, fmt.Errorf("decode status response: %w", err)
	}

	return view, nil
}
