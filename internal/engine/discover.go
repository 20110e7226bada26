package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"habsync/internal/openhab"
)

// DefaultItemTypes is the allow-list of numeric item type prefixes applied
// when the application config does not override it: plain numbers plus the
// dimensioned subtypes building sensors commonly report.
var DefaultItemTypes = []string{
	"Number",
	"Number:Temperature",
	"Number:Humidity",
	"Number:Dimensionless",
}

// Candidate is a mappable middleware item, normalised for operator
// assignment.
type Candidate struct {
	Name     string
	Type     string
	Label    string
	State    string
	Category string
}

// Discoverer lists the middleware items an operator can still map: items
// with a sensor-compatible numeric type that no existing mapping claims.
// Purely a read/transform; nothing is persisted.
type Discoverer struct {
	store        Store
	clients      ClientFactory
	typePrefixes []string
	log          *slog.Logger
}

// NewDiscoverer creates a Discoverer. A nil clients factory defaults to real
// [openhab.Client] instances; an empty typePrefixes falls back to
// [DefaultItemTypes].
func NewDiscoverer(st Store, clients ClientFactory, typePrefixes []string, logger *slog.Logger) *Discoverer {
	if clients == nil {
		clients = func(endpointURL, token string) ItemSource {
			return openhab.NewClient(endpointURL, token)
		}
	}
	if len(typePrefixes) == 0 {
		typePrefixes = DefaultItemTypes
	}
	return &Discoverer{store: st, clients: clients, typePrefixes: typePrefixes, log: logger}
}

// Discover returns the unmapped numeric candidates for one configuration.
// Unlike a sync run, discovery is all-or-nothing: a failed item listing
// propagates and no partial result is returned. Items outside the type
// allow-list are dropped on purpose: only scalar, sensor-like items are
// mappable.
func (d *Discoverer) Discover(ctx context.Context, configID string) ([]Candidate, error) {
	cfg, err := d.store.GetConfig(ctx, configID)
	if err != nil {
		return nil, fmt.Errorf("reading sync config: %w", err)
	}
	if cfg == nil {
		return nil, &PreconditionError{Reason: "no sync configuration exists"}
	}

	mappings, err := d.store.ListMappings(ctx, configID, false)
	if err != nil {
		return nil, fmt.Errorf("reading item mappings: %w", err)
	}
	mapped := make(map[string]struct{}, len(mappings))
	for _, m := range mappings {
		mapped[m.ExternalItemName] = struct{}{}
	}

	items, err := d.clients(cfg.EndpointURL, cfg.AuthToken).ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing middleware items: %w", err)
	}

	var candidates []Candidate
	for _, it := range items {
		if !d.typeAllowed(it.Type) {
			continue
		}
		if _, taken := mapped[it.Name]; taken {
			continue
		}
		label := it.Label
		if label == "" {
			label = it.Name
		}
		candidates = append(candidates, Candidate{
			Name:     it.Name,
			Type:     it.Type,
			Label:    label,
			State:    it.State,
			Category: it.Category,
		})
	}

	d.log.Debug("item discovery complete",
		"config_id", configID,
		"total", len(items),
		"candidates", len(candidates),
	)
	return candidates, nil
}

func (d *Discoverer) typeAllowed(itemType string) bool {
	for _, prefix := range d.typePrefixes {
		if strings.HasPrefix(itemType, prefix) {
			return true
		}
	}
	return false
}
