package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-signals/internal/contracts"
)

// PostgresBars implements contracts.BarRepository on market.daily_bars
// ⭐ SSOT: daily bar storage lives here only
type PostgresBars struct {
	pool *pgxpool.Pool
}

// NewPostgresBars creates a bar repository
func NewPostgresBars(pool *pgxpool.Pool) *PostgresBars {
	return &PostgresBars{pool: pool}
}

// Bars returns bars inside the range, ascending
func (r *PostgresBars) Bars(ctx context.Context, symbol string, dr contracts.DateRange) ([]contracts.Bar, error) {
	query := `
		SELECT trade_date, open_price, high_price, low_price, close_price, volume
		FROM market.daily_bars
		WHERE symbol = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, symbol, dr.From, dr.To)
	if err != nil {
		return nil, fmt.Errorf("query bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []contracts.Bar
	for rows.Next() {
		var b contracts.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// SaveBars upserts bars in one round trip
func (r *PostgresBars) SaveBars(ctx context.Context, symbol string, bars []contracts.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	query := `
		INSERT INTO market.daily_bars (symbol, trade_date, open_price, high_price, low_price, close_price, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, trade_date) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume
	`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range bars {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save bars for %s: %w", symbol, err)
		}
	}
	return nil
}

// PostgresSnapshots implements contracts.SnapshotRepository on market.quote_snapshots
type PostgresSnapshots struct {
	pool *pgxpool.Pool
}

// NewPostgresSnapshots creates a snapshot repository
func NewPostgresSnapshots(pool *pgxpool.Pool) *PostgresSnapshots {
	return &PostgresSnapshots{pool: pool}
}

// SaveSnapshot stores the quote unless a newer one is already present
func (r *PostgresSnapshots) SaveSnapshot(ctx context.Context, q contracts.MarketQuote) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO market.quote_snapshots (symbol, payload, fetched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol) DO UPDATE SET
			payload = EXCLUDED.payload,
			fetched_at = EXCLUDED.fetched_at
		WHERE market.quote_snapshots.fetched_at <= EXCLUDED.fetched_at
	`

	if _, err := r.pool.Exec(ctx, query, q.Symbol, payload, q.FetchedAt); err != nil {
		return fmt.Errorf("save snapshot for %s: %w", q.Symbol, err)
	}
	return nil
}

// LatestSnapshot returns the stored quote for a symbol
func (r *PostgresSnapshots) LatestSnapshot(ctx context.Context, symbol string) (contracts.MarketQuote, bool, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `SELECT payload FROM market.quote_snapshots WHERE symbol = $1`, symbol).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return contracts.MarketQuote{}, false, nil
	}
	if err != nil {
		return contracts.MarketQuote{}, false, fmt.Errorf("load snapshot for %s: %w", symbol, err)
	}

	var q contracts.MarketQuote
	if err := json.Unmarshal(payload, &q); err != nil {
		return contracts.MarketQuote{}, false, fmt.Errorf("decode snapshot for %s: %w", symbol, err)
	}
	return q, true, nil
}
