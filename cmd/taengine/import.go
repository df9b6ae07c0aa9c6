package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"ta-engine/internal/bars"
	"ta-engine/internal/model"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		csvPath   string
		symbol    string
		timeframe int
		dbPath    string
		newOnly   bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "load bars from a CSV file into the SQLite store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if csvPath == "" || symbol == "" {
				return errors.New("--csv and --symbol options are required")
			}
			if timeframe <= 0 {
				return errors.New("--timeframe must be positive")
			}
			if dbPath == "" {
				dbPath = a.cfg.Source.SQLitePath
			}

			f, err := os.Open(csvPath)
			if err != nil {
				return err
			}
			defer f.Close()

			rows, err := bars.ReadCSV(f)
			if err != nil {
				return fmt.Errorf("%s: %w", csvPath, err)
			}
			sort.SliceStable(rows, func(i, j int) bool { return rows[i].TS.Before(rows[j].TS) })
			if _, err := model.NewBarSeries(rows); err != nil {
				return fmt.Errorf("%s: %w", csvPath, err)
			}

			store, err := openSQLite(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			sym := strings.ToUpper(strings.TrimSpace(symbol))
			if newOnly {
				last, err := store.LastTimestamp(cmd.Context(), sym, timeframe)
				if err != nil {
					return err
				}
				skip := sort.Search(len(rows), func(i int) bool { return rows[i].TS.After(last) })
				rows = rows[skip:]
			}
			n, err := store.WriteBars(cmd.Context(), sym, timeframe, rows)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d bars for %s/%d into %s\n", n, sym, timeframe, dbPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file with timestamp,open,high,low,close[,volume] columns")
	cmd.Flags().StringVar(&symbol, "symbol", "", "ticker to store the bars under")
	cmd.Flags().IntVar(&timeframe, "timeframe", 1, "minutes per bar")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database (default from config)")
	cmd.Flags().BoolVar(&newOnly, "new-only", false, "skip bars not newer than the latest stored bar")
	return cmd
}

func newSymbolsCmd(a *app) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "list symbols stored in the SQLite store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = a.cfg.Source.SQLitePath
			}
			store, err := openSQLite(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			syms, err := store.Symbols(cmd.Context())
			if err != nil {
				return err
			}
			if syms == nil {
				syms = []string{}
			}
			return printJSON(cmd.OutOrStdout(), syms)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database (default from config)")
	return cmd
}
