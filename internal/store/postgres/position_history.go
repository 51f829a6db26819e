package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// PositionHistoryStore implements domain.PositionHistoryStore on Postgres.
type PositionHistoryStore struct {
	pool        *pgxpool.Pool
	naturalKeys bool
}

// NewPositionHistoryStore creates the store. With naturalKeys set, inserts
// carry ON CONFLICT DO NOTHING against the (account, timestamp, coin) unique
// index so replayed ticks are idempotent.
func NewPositionHistoryStore(pool *pgxpool.Pool, naturalKeys bool) *PositionHistoryStore {
	return &PositionHistoryStore{pool: pool, naturalKeys: naturalKeys}
}

func (s *PositionHistoryStore) InsertSnapshot(ctx context.Context, account string, ts time.Time, positions []domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	query := `
		INSERT INTO position_history (
			id, account, timestamp, coin, side, size, entry_price,
			liquidation_price, leverage, unrealized_pnl, realized_pnl, margin_used
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if s.naturalKeys {
		query += " ON CONFLICT (account, timestamp, coin) DO NOTHING"
	}

	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(query,
			uuid.NewString(), account, ts.UTC(), p.Asset, string(p.Side),
			p.Size, p.EntryPrice, p.LiquidationPrice, p.Leverage,
			p.UnrealizedPnL, p.RealizedPnL, p.MarginUsed,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range positions {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: insert position row: %w", err)
		}
	}
	return nil
}

func (s *PositionHistoryStore) List(ctx context.Context, account, asset string, opts domain.ListOpts) ([]domain.PositionRecord, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT account, timestamp, coin, side, size, entry_price,
		       liquidation_price, leverage, unrealized_pnl, realized_pnl, margin_used
		FROM position_history
		WHERE account = $1`)
	args := []any{account}

	if asset != "" {
		args = append(args, asset)
		fmt.Fprintf(&sb, " AND coin = $%d", len(args))
	}
	appendWindow(&sb, &args, opts)
	sb.WriteString(" ORDER BY timestamp DESC")
	appendPage(&sb, &args, opts)

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	defer rows.Close()

	var out []domain.PositionRecord
	for rows.Next() {
		var rec domain.PositionRecord
		var side string
		if err := rows.Scan(
			&rec.Account, &rec.Timestamp, &rec.Position.Asset, &side,
			&rec.Position.Size, &rec.Position.EntryPrice,
			&rec.Position.LiquidationPrice, &rec.Position.Leverage,
			&rec.Position.UnrealizedPnL, &rec.Position.RealizedPnL,
			&rec.Position.MarginUsed,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan position row: %w", err)
		}
		rec.Position.Side = domain.Side(side)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate position rows: %w", err)
	}
	return out, nil
}

// appendWindow adds since/until predicates shared by the list queries.
func appendWindow(sb *strings.Builder, args *[]any, opts domain.ListOpts) {
	if opts.Since != nil {
		*args = append(*args, opts.Since.UTC())
		fmt.Fprintf(sb, " AND timestamp >= $%d", len(*args))
	}
	if opts.Until != nil {
		*args = append(*args, opts.Until.UTC())
		fmt.Fprintf(sb, " AND timestamp <= $%d", len(*args))
	}
}

func appendPage(sb *strings.Builder, args *[]any, opts domain.ListOpts) {
	if opts.Limit > 0 {
		*args = append(*args, opts.Limit)
		fmt.Fprintf(sb, " LIMIT $%d", len(*args))
	}
	if opts.Offset > 0 {
		*args = append(*args, opts.Offset)
		fmt.Fprintf(sb, " OFFSET $%d", len(*args))
	}
}
