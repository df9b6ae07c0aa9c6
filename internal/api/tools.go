package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"ta-engine/internal/service"
)

// Agent-protocol tool names.
const (
	ToolListIndicators    = "list_indicators"
	ToolListPatterns      = "list_patterns"
	ToolComputeIndicators = "compute_indicators"
	ToolDetectPatterns    = "detect_patterns"
	ToolGetBars           = "get_bars"
)

// KindUnknownTool is the error kind for a tool name that is not served.
const KindUnknownTool = "unknown_tool"

// UnknownToolError is returned for a call to an unregistered tool.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string { return fmt.Sprintf("unknown tool %q", e.Name) }

func (e *UnknownToolError) Kind() string { return KindUnknownTool }

type toolFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Tools dispatches agent-protocol calls onto the analyzer.
type Tools struct {
	analyzer *service.Analyzer
	byName   map[string]toolFunc
}

// NewTools registers the served tools.
func NewTools(a *service.Analyzer) *Tools {
	t := &Tools{analyzer: a}
	t.byName = map[string]toolFunc{
		ToolListIndicators: func(context.Context, json.RawMessage) (any, error) {
			return a.Indicators().List(), nil
		},
		ToolListPatterns: func(context.Context, json.RawMessage) (any, error) {
			return a.Patterns().List(), nil
		},
		ToolComputeIndicators: func(ctx context.Context, args json.RawMessage) (any, error) {
			var req calculationRequest
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}
			return t.computeIndicators(ctx, req)
		},
		ToolDetectPatterns: func(ctx context.Context, args json.RawMessage) (any, error) {
			var req detectionRequest
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}
			return a.DetectPatterns(ctx, req.Query, req.Patterns)
		},
		ToolGetBars: func(ctx context.Context, args json.RawMessage) (any, error) {
			var q service.Query
			if err := decodeArgs(args, &q); err != nil {
				return nil, err
			}
			s, _, err := a.Bars(ctx, q)
			if err != nil {
				return nil, err
			}
			return s.Bars(), nil
		},
	}
	return t
}

// Names lists the served tools in name order.
func (t *Tools) Names() []string {
	out := make([]string, 0, len(t.byName))
	for n := range t.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Call runs one tool.
func (t *Tools) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	fn, ok := t.byName[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return fn(ctx, args)
}

func (t *Tools) computeIndicators(ctx context.Context, req calculationRequest) (*service.IndicatorReport, error) {
	specs, err := service.DecodeSpecs(req.Indicators)
	if err != nil {
		return nil, err
	}
	return t.analyzer.ComputeIndicators(ctx, req.Query, specs)
}

func decodeArgs(args json.RawMessage, dst any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, dst); err != nil {
		return errors.Join(service.ErrBadQuery, err)
	}
	return nil
}
