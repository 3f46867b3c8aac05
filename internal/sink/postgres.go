package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-signals/internal/contracts"
)

// SignalRepository implements contracts.SignalRepository and contracts.SignalSink
// ⭐ SSOT: consensus signal persistence lives here only
type SignalRepository struct {
	pool *pgxpool.Pool
}

// NewSignalRepository creates a new signal repository
func NewSignalRepository(pool *pgxpool.Pool) *SignalRepository {
	return &SignalRepository{pool: pool}
}

// Publish persists the signals
func (r *SignalRepository) Publish(ctx context.Context, signals []contracts.ConsensusSignal) error {
	return r.SaveSignals(ctx, signals)
}

// SaveSignals inserts all signals in one transaction
func (r *SignalRepository) SaveSignals(ctx context.Context, signals []contracts.ConsensusSignal) error {
	if len(signals) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO signals.consensus_signals
			(symbol, direction, confidence, agreement, strategies,
			 entry_price, target_price, stop_price, external_score, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	batch := &pgx.Batch{}
	for _, s := range signals {
		batch.Queue(query,
			s.Symbol, string(s.Direction), s.Confidence, s.Agreement, s.Strategies,
			s.Entry, s.Target, s.Stop, s.ExternalScore, s.GeneratedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range signals {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to insert signal: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SignalsSince returns a symbol's signals generated at or after since, newest first
func (r *SignalRepository) SignalsSince(ctx context.Context, symbol string, since time.Time) ([]contracts.ConsensusSignal, error) {
	query := `
		SELECT symbol, direction, confidence, agreement, strategies,
		       entry_price, target_price, stop_price, external_score, generated_at
		FROM signals.consensus_signals
		WHERE symbol = $1 AND generated_at >= $2
		ORDER BY generated_at DESC
	`

	rows, err := r.pool.Query(ctx, query, symbol, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var out []contracts.ConsensusSignal
	for rows.Next() {
		var (
			s   contracts.ConsensusSignal
			dir string
		)
		if err := rows.Scan(&s.Symbol, &dir, &s.Confidence, &s.Agreement, &s.Strategies,
			&s.Entry, &s.Target, &s.Stop, &s.ExternalScore, &s.GeneratedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		s.Direction = contracts.Direction(dir)
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
