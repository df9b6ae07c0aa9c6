package indicator

import (
	"fmt"
	"sort"

	"ta-engine/internal/model"
)

// Registry is an immutable catalog of indicators keyed by name.
// Build it once at startup and pass it to Compute.
type Registry struct {
	byName map[string]Indicator
	names  []string
}

// NewRegistry builds a registry. Duplicate names panic.
func NewRegistry(inds ...Indicator) *Registry {
	r := &Registry{byName: make(map[string]Indicator, len(inds))}
	for _, ind := range inds {
		if _, dup := r.byName[ind.Name()]; dup {
			panic(fmt.Sprintf("indicator: duplicate registration of %q", ind.Name()))
		}
		r.byName[ind.Name()] = ind
		r.names = append(r.names, ind.Name())
	}
	sort.Strings(r.names)
	return r
}

// DefaultRegistry returns the standard catalog.
func DefaultRegistry() *Registry {
	return NewRegistry(
		smaDef, emaDef, smmaDef, wmaDef,
		rsiDef, stochDef, willrDef,
		atrDef, bbwDef,
		volumeSMADef, cvdDef, obvDef, vwapDef,
	)
}

// Lookup returns the indicator registered under name (case-sensitive).
func (r *Registry) Lookup(name string) (Indicator, error) {
	ind, ok := r.byName[name]
	if !ok {
		return nil, &model.UnknownIndicatorError{Name: name}
	}
	return ind, nil
}

// Names returns registered names in ascending order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Descriptor is the listing form of an indicator.
type Descriptor struct {
	Name        string      `json:"name"`
	Category    Category    `json:"category"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params"`
	Lookback    int         `json:"lookback"`
}

// List returns descriptors ordered by name, with lookback at default parameters.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.names))
	for _, name := range r.names {
		ind := r.byName[name]
		params := ind.Params()
		if params == nil {
			params = []ParamSpec{}
		}
		out = append(out, Descriptor{
			Name:        ind.Name(),
			Category:    ind.Category(),
			Description: ind.Description(),
			Params:      params,
			Lookback:    ind.Lookback(DefaultParams(ind)),
		})
	}
	return out
}
