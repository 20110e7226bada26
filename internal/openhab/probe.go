package openhab

import (
	"context"
	"fmt"
)

// ProbeResult is the user-facing outcome of a connection test.
type ProbeResult struct {
	OK        bool
	ItemCount int
	Message   string
}

// Probe checks that the given endpoint is reachable and counts its items.
// It runs against operator-entered draft values, before anything is
// persisted, and never returns an error: every failure kind is normalised
// into a displayable message so the caller can render it directly.
func Probe(ctx context.Context, endpointURL, token string) ProbeResult {
	items, err := NewClient(endpointURL, token).ListItems(ctx)
	if err != nil {
		return ProbeResult{Message: err.Error()}
	}
	return ProbeResult{
		OK:        true,
		ItemCount: len(items),
		Message:   fmt.Sprintf("connected, %d items found", len(items)),
	}
}
