package indicator

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"ta-engine/internal/model"
)

// Spec is one indicator request in a batch.
type Spec struct {
	Name   string         `json:"name"`
	Alias  string         `json:"alias,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Key is the output key of the request: the alias when set, else the name.
func (s Spec) Key() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Name
}

// rejectedSep joins a rejected request's key and index in Results.
const rejectedSep = "#"

// Outcome is the result of one request: Values on success, Err otherwise.
type Outcome struct {
	Name   string
	Params Params
	Values Values
	Err    error
}

// Results maps output keys to outcomes.
type Results map[string]Outcome

// Failed returns the keys whose requests failed, in key order.
func (r Results) Failed() []string {
	var out []string
	for k, o := range r {
		if o.Err != nil {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Compute runs every request against the series. Requests fail independently:
// an unknown name, bad parameters or too few bars only affect their own
// Outcome. Output is identical across calls for identical inputs.
func Compute(reg *Registry, s *model.BarSeries, reqs []Spec) Results {
	out := make(Results, len(reqs))
	outcomes := make([]Outcome, len(reqs))
	run := make([]bool, len(reqs))

	// Duplicate keys are resolved in request order before fanning out, so the
	// first request claiming a key always wins.
	keys := make(map[string]int, len(reqs))
	for i, req := range reqs {
		k := req.Key()
		if strings.Contains(k, rejectedSep) {
			// reserved for rejected requests, so it never names a result
			outcomes[i] = Outcome{Name: req.Name, Err: &model.UnknownIndicatorError{Name: req.Name}}
			if req.Alias != "" {
				outcomes[i].Err = &model.InvalidParameterError{
					Indicator: req.Name, Param: "alias",
					Reason: fmt.Sprintf("must not contain %q", rejectedSep),
				}
			}
			continue
		}
		if first, dup := keys[k]; dup {
			outcomes[i] = Outcome{Name: req.Name, Err: &model.InvalidParameterError{
				Indicator: req.Name, Param: "alias",
				Reason: fmt.Sprintf("output key %q already used by request %d", k, first),
			}}
			continue
		}
		keys[k] = i
		run[i] = true
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range reqs {
		if !run[i] {
			continue
		}
		g.Go(func() error {
			outcomes[i] = computeOne(reg, s, reqs[i])
			return nil
		})
	}
	_ = g.Wait()

	for i, req := range reqs {
		if !run[i] {
			continue
		}
		out[req.Key()] = outcomes[i]
	}
	// a rejected request is reported under "<key>#<index>" so the caller
	// still sees the failure; accepted keys never contain the separator
	for i, req := range reqs {
		if run[i] {
			continue
		}
		out[req.Key()+rejectedSep+strconv.Itoa(i)] = outcomes[i]
	}
	return out
}

func computeOne(reg *Registry, s *model.BarSeries, req Spec) Outcome {
	ind, err := reg.Lookup(req.Name)
	if err != nil {
		return Outcome{Name: req.Name, Err: err}
	}
	p, err := Resolve(ind, req.Params)
	if err != nil {
		return Outcome{Name: req.Name, Err: err}
	}
	if need := ind.Lookback(p); s.Len() < need {
		return Outcome{Name: req.Name, Params: p, Err: &model.InsufficientDataError{
			Name: req.Name, Required: need, Have: s.Len(),
		}}
	}
	return Outcome{Name: req.Name, Params: p, Values: ind.Compute(s, p)}
}
