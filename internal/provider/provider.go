// Package provider implements the indicator providers over the Korean
// public open-data portals. Each provider owns one indicator, one fixed
// category, and its own native payload shape; the payload never crosses
// the aggregator boundary un-normalized.
package provider

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/beanraft/district-cli/internal/config"
	"github.com/beanraft/district-cli/internal/model"
)

// Keying tells the aggregator which request fields a provider consumes.
type Keying string

const (
	// KeyedByUnitCode providers query by administrative unit code and are
	// disabled for a request when the unit-code prerequisite fails.
	KeyedByUnitCode Keying = "unit_code"
	// KeyedByCoordinate providers query by WGS84 point and run even
	// without a unit code.
	KeyedByCoordinate Keying = "coordinate"
)

// Request carries the keys a provider may need. UnitCode is empty when
// the prerequisite lookup failed; Lat/Lon always come from resolution.
type Request struct {
	UnitCode string
	Lat      float64
	Lon      float64
}

// Payload is a provider-native response. Normalize extracts the one
// indicator the provider owns, converted to its common unit (recurring
// counts per month); ok is false when the payload holds no usable value.
type Payload interface {
	Normalize() (model.Indicator, bool)
}

// Provider is one independent indicator source. Retries is the total
// attempt budget including the first try; Timeout caps a single attempt.
// Both are provider-specific constants, never configuration.
type Provider interface {
	Name() string
	Indicator() model.IndicatorKey
	Keying() Keying
	Retries() int
	Timeout() time.Duration
	// ExpandEligible marks count providers whose zero-or-absent primary
	// value triggers neighbor expansion.
	ExpandEligible() bool
	Fetch(ctx context.Context, req Request) (Payload, error)
}

// Registry manages the available indicator providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// All returns every registered provider sorted by name, so fan-out order
// and progress totals are deterministic.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len reports the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// NewDefaultRegistry builds the full provider set over a shared portal.
func NewDefaultRegistry(cfg config.ProvidersConfig) *Registry {
	portal := NewPortal(cfg)
	reg := NewRegistry()
	reg.Register(NewResidents(portal))
	reg.Register(NewWorkers(portal))
	reg.Register(NewFootTraffic(portal))
	reg.Register(NewCafes(portal))
	reg.Register(NewRent(portal))
	reg.Register(NewSpending(portal))
	reg.Register(NewAptPrice(portal))
	reg.Register(NewSubway(portal))
	reg.Register(NewBusStops(portal))
	return reg
}
