// Package sqlite stores bars in a local SQLite database. It serves as a bar
// source for analysis and as the target of CSV imports.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ta-engine/internal/model"
)

const defaultBatchSize = 500

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/bars.db"
}

// Store reads and writes the bars table.
type Store struct {
	db *sql.DB
}

// Open opens the database with WAL mode and creates the schema.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// single writer; WAL lets readers share it
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

// createSchema keeps bar times as Unix nanoseconds so every series that
// model.NewBarSeries accepts round-trips without collapsing bars.
func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol    TEXT    NOT NULL,
			timeframe INTEGER NOT NULL,
			ts_ns     INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL    NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, timeframe, ts_ns)
		);
	`)
	return err
}

// WriteBars upserts bars for one symbol and timeframe in batched transactions.
func (s *Store) WriteBars(ctx context.Context, symbol string, timeframe int, bars []model.Bar) (int, error) {
	written := 0
	for start := 0; start < len(bars); start += defaultBatchSize {
		end := min(start+defaultBatchSize, len(bars))
		begin := time.Now()
		if err := s.insertBatch(ctx, symbol, timeframe, bars[start:end]); err != nil {
			return written, fmt.Errorf("sqlite insert bars: %w", err)
		}
		written += end - start
		log.Printf("[sqlite] committed %d bars for %s/%d in %v", end-start, symbol, timeframe, time.Since(begin))
	}
	return written, nil
}

// insertBatch inserts a batch of bars in a single transaction.
func (s *Store) insertBatch(ctx context.Context, symbol string, timeframe int, bars []model.Bar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, timeframe, ts_ns, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, timeframe, b.TS.UnixNano(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
