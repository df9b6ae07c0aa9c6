package pattern

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"ta-engine/internal/model"
)

// Detect scans every index of s against every registered pattern.
// Matches are ordered by end index ascending, then confidence descending,
// then name. Work for index i reads only bars at or before i.
func Detect(reg *Registry, s *model.BarSeries) []Match {
	out := scan(reg, s, 0, s.Len())
	sortMatches(out)
	return out
}

// DetectParallel splits the index range into contiguous chunks scanned by up
// to workers goroutines. The result equals Detect.
func DetectParallel(reg *Registry, s *model.BarSeries, workers int) []Match {
	n := s.Len()
	if workers < 2 || n < 2*workers {
		return Detect(reg, s)
	}

	chunk := (n + workers - 1) / workers
	parts := make([][]Match, workers)
	var g errgroup.Group
	g.SetLimit(workers)
	for w := 0; w < workers; w++ {
		from, to := w*chunk, min((w+1)*chunk, n)
		if from >= to {
			continue
		}
		g.Go(func() error {
			parts[w] = scan(reg, s, from, to)
			return nil
		})
	}
	_ = g.Wait()

	var out []Match
	for _, p := range parts {
		out = append(out, p...)
	}
	sortMatches(out)
	return out
}

// DetectNamed runs detection restricted to the named patterns.
func DetectNamed(reg *Registry, s *model.BarSeries, names []string) ([]Match, error) {
	sub, err := reg.Subset(names...)
	if err != nil {
		return nil, err
	}
	return Detect(sub, s), nil
}

// scan evaluates end indices [from, to). Windows and context may reach back
// before from; nothing past the end index is read.
func scan(reg *Registry, s *model.BarSeries, from, to int) []Match {
	var out []Match
	for i := from; i < to; i++ {
		end := s.At(i)
		for _, p := range reg.ordered {
			w := p.WindowSize()
			start := i - w + 1
			if start < 0 {
				continue
			}
			score, ok := p.Match(s.Window(start, i+1))
			if !ok {
				continue
			}
			validated := false
			if p.RequiresContext() {
				if !reg.validator.Confirm(s, start, i+1, p.Classification()) {
					continue
				}
				validated = true
			}
			out = append(out, Match{
				Name:             p.Name(),
				Classification:   p.Classification(),
				EndIndex:         i,
				WindowSize:       w,
				Confidence:       clip01(score),
				ContextValidated: validated,
				Timestamp:        end.TS,
			})
		}
	}
	return out
}

func sortMatches(m []Match) {
	sort.SliceStable(m, func(i, j int) bool {
		a, b := m[i], m[j]
		if a.EndIndex != b.EndIndex {
			return a.EndIndex < b.EndIndex
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Name < b.Name
	})
}
