package pattern

import (
	"fmt"
	"sort"

	"ta-engine/internal/model"
)

// Registry is an immutable catalog of patterns plus the context validator
// applied to patterns that require it.
type Registry struct {
	byName    map[string]Pattern
	ordered   []Pattern // by name
	validator ContextValidator
}

// NewRegistry builds a registry. Duplicate names and window sizes outside
// 1..4 panic.
func NewRegistry(patterns ...Pattern) *Registry {
	r := &Registry{
		byName:    make(map[string]Pattern, len(patterns)),
		validator: ContextValidator{Span: DefaultContextSpan},
	}
	for _, p := range patterns {
		if _, dup := r.byName[p.Name()]; dup {
			panic(fmt.Sprintf("pattern: duplicate registration of %q", p.Name()))
		}
		if w := p.WindowSize(); w < 1 || w > 4 {
			panic(fmt.Sprintf("pattern: %q has window size %d", p.Name(), w))
		}
		r.byName[p.Name()] = p
		r.ordered = append(r.ordered, p)
	}
	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].Name() < r.ordered[j].Name() })
	return r
}

// DefaultRegistry returns the standard twenty-pattern catalog.
func DefaultRegistry() *Registry {
	return NewRegistry(
		hammer, invertedHammer, bullishMarubozu, bullishEngulfing, bullishHarami,
		piercingLine, tweezerBottom, morningStar, threeWhiteSoldiers,
		shootingStar, hangingMan, bearishMarubozu, bearishEngulfing, bearishHarami,
		darkCloudCover, tweezerTop, eveningStar, threeBlackCrows,
		doji, spinningTop,
	)
}

// WithContextSpan returns a copy of r whose validator inspects span bars.
func (r *Registry) WithContextSpan(span int) *Registry {
	cp := *r
	cp.validator = ContextValidator{Span: span}
	return &cp
}

// Validator returns the context validator used by Detect.
func (r *Registry) Validator() ContextValidator { return r.validator }

// Lookup returns the pattern registered under name (case-sensitive).
func (r *Registry) Lookup(name string) (Pattern, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, &model.UnknownPatternError{Name: name}
	}
	return p, nil
}

// Names returns registered names in ascending order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.ordered))
	for i, p := range r.ordered {
		out[i] = p.Name()
	}
	return out
}

// Subset returns a registry restricted to names, sharing r's validator.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	picked := make([]Pattern, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		p, err := r.Lookup(n)
		if err != nil {
			return nil, err
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		picked = append(picked, p)
	}
	sub := NewRegistry(picked...)
	sub.validator = r.validator
	return sub, nil
}

// Descriptor is the listing form of a pattern.
type Descriptor struct {
	Name            string         `json:"name"`
	Classification  Classification `json:"classification"`
	Description     string         `json:"description"`
	WindowSize      int            `json:"window_size"`
	RequiresContext bool           `json:"requires_context_validation"`
}

// List returns descriptors ordered by name.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.ordered))
	for i, p := range r.ordered {
		out[i] = Descriptor{
			Name:            p.Name(),
			Classification:  p.Classification(),
			Description:     p.Description(),
			WindowSize:      p.WindowSize(),
			RequiresContext: p.RequiresContext(),
		}
	}
	return out
}
