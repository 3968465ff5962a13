package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/nu-iot-lab/lora-mesh-cds/internal/server"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatStatus renders a node's status view in the requested format.
func formatStatus(view server.StatusView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatStatusJSON(view)
	case formatTable:
		return formatStatusTable(view), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatStatusJSON(view server.StatusView) (string, error) {
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal status to JSON: %w", err)
	}
	return string(data), nil
}

func formatStatusTable(view server.StatusView) string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "MAC:             %s\n", view.MAC)
	fmt.Fprintf(&buf, "Dominant:        %v\n", view.IsDominant)
	fmt.Fprintf(&buf, "In Discovery:    %v\n", view.InDiscovery)
	fmt.Fprintf(&buf, "Neighbor Count:  %d\n", view.NeighborCount)

	if len(view.Neighbors) == 0 {
		return buf.String()
	}

	buf.WriteString("\n")
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MAC\tDOMINANT\tRSSI\tTWO-HOP\tLAST BEACON")
	for _, n := range view.Neighbors {
		fmt.Fprintf(w, "%s\t%v\t%.1f\t%v\t%s\n",
			n.MAC, n.IsDominant, n.SmoothedRSSI, n.HasTwoHop, n.LastBeaconAt)
	}
	w.Flush() //nolint:errcheck // writes to an in-memory strings.Builder, cannot fail.

	return buf.String()
}
