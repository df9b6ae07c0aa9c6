package main

import (
	"errors"

	"github.com/spf13/cobra"

	"ta-engine/internal/indicator"
	"ta-engine/internal/service"
)

type analysis struct {
	Indicators *service.IndicatorReport `json:"indicators,omitempty"`
	Patterns   *service.PatternReport   `json:"patterns,omitempty"`
}

// go run ./cmd/taengine analyze --symbol SPY --indicator rsi:length=14 --indicator fast=ema:length=5 --patterns
func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		q            service.Query
		indicatorArg []string
		withPatterns bool
		patternNames []string
		minute       int
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "compute indicators and detect patterns for one symbol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if q.Symbol == "" {
				return errors.New("--symbol option is required")
			}
			if cmd.Flags().Changed("minute") {
				q.Minute = &minute
			}
			if len(patternNames) > 0 {
				withPatterns = true
			}
			if len(indicatorArg) == 0 && !withPatterns {
				return errors.New("nothing to do: pass --indicator and/or --patterns")
			}

			specs := make([]indicator.Spec, 0, len(indicatorArg))
			for _, arg := range indicatorArg {
				spec, err := service.ParseSpec(arg)
				if err != nil {
					return err
				}
				specs = append(specs, spec)
			}

			ctx := cmd.Context()
			src, err := openSource(ctx, a.cfg)
			if err != nil {
				return err
			}
			analyzer := newAnalyzer(a.cfg, src, openCache(a.cfg, nil), nil)
			defer analyzer.Close()

			var out analysis
			if len(specs) > 0 {
				if out.Indicators, err = analyzer.ComputeIndicators(ctx, q, specs); err != nil {
					return err
				}
			}
			if withPatterns {
				if out.Patterns, err = analyzer.DetectPatterns(ctx, q, patternNames); err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&q.Symbol, "symbol", "", "the ticker, e.g. SPY")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "bars to fetch (default from config)")
	cmd.Flags().IntVar(&q.Timeframe, "timeframe", 1, "minutes per bar")
	cmd.Flags().IntVar(&q.Day, "day", 0, "analyze as of this day, YYYYMMDD (UTC)")
	cmd.Flags().IntVar(&minute, "minute", 0, "analyze as of this minute of --day, HHMM")
	cmd.Flags().StringArrayVar(&indicatorArg, "indicator", nil, "[alias=]name[:key=value,...], repeatable")
	cmd.Flags().BoolVar(&withPatterns, "patterns", false, "detect candlestick patterns")
	cmd.Flags().StringSliceVar(&patternNames, "pattern", nil, "restrict detection to these patterns (implies --patterns)")
	return cmd
}
