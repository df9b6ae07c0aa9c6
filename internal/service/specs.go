package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ta-engine/internal/indicator"
)

// DecodeSpecs accepts either an object mapping indicator names to parameter
// objects ({"rsi":{"length":14}}) or an array of specs
// ([{"name":"ema","alias":"fast","params":{"length":5}}]). Object entries are
// returned in name order.
func DecodeSpecs(raw json.RawMessage) ([]indicator.Spec, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: indicators are required", ErrBadQuery)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	switch raw[0] {
	case '{':
		var byName map[string]map[string]any
		if err := dec.Decode(&byName); err != nil {
			return nil, fmt.Errorf("%w: indicators: %v", ErrBadQuery, err)
		}
		names := make([]string, 0, len(byName))
		for n := range byName {
			names = append(names, n)
		}
		sort.Strings(names)
		out := make([]indicator.Spec, 0, len(names))
		for _, n := range names {
			out = append(out, indicator.Spec{Name: n, Params: byName[n]})
		}
		return out, nil
	case '[':
		var out []indicator.Spec
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("%w: indicators: %v", ErrBadQuery, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: indicators must be an object or an array", ErrBadQuery)
	}
}

// ParseSpec parses the command-line form "[alias=]name[:key=value,...]",
// e.g. "rsi:length=14" or "fast=sma:length=5,source=high".
func ParseSpec(s string) (indicator.Spec, error) {
	head, tail, hasParams := strings.Cut(strings.TrimSpace(s), ":")
	var spec indicator.Spec
	if alias, name, ok := strings.Cut(head, "="); ok {
		spec.Alias, spec.Name = strings.TrimSpace(alias), strings.TrimSpace(name)
	} else {
		spec.Name = strings.TrimSpace(head)
	}
	if spec.Name == "" {
		return spec, fmt.Errorf("%w: empty indicator name in %q", ErrBadQuery, s)
	}
	if !hasParams || strings.TrimSpace(tail) == "" {
		return spec, nil
	}

	spec.Params = map[string]any{}
	for _, kv := range strings.Split(tail, ",") {
		k, v, ok := strings.Cut(kv, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return spec, fmt.Errorf("%w: parameter %q in %q is not key=value", ErrBadQuery, kv, s)
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			spec.Params[k] = f
		} else {
			spec.Params[k] = v
		}
	}
	return spec, nil
}
