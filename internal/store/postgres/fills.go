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

// FillStore implements domain.FillStore on Postgres. The fill_id unique
// constraint is the dedup boundary: redelivered fills are dropped by
// ON CONFLICT DO NOTHING regardless of schema variant.
type FillStore struct {
	pool *pgxpool.Pool
}

func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

func (s *FillStore) InsertBatch(ctx context.Context, account string, fills []domain.Fill) (int, error) {
	if len(fills) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO fills_history (
			id, account, fill_id, order_id, coin, side, size, price, closed_pnl, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (fill_id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, f := range fills {
		batch.Queue(query,
			uuid.NewString(), account, f.FillID, f.OrderID, f.Asset,
			string(f.Side), f.Size, f.Price, f.ClosedPnL, f.Timestamp.UTC(),
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range fills {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert fill row: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *FillStore) SumClosedPnL(ctx context.Context, account, asset string, since, until time.Time) (float64, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT COALESCE(SUM(closed_pnl), 0)
		FROM fills_history
		WHERE account = $1 AND timestamp >= $2 AND timestamp <= $3`)
	args := []any{account, since.UTC(), until.UTC()}

	if asset != "" {
		args = append(args, asset)
		fmt.Fprintf(&sb, " AND coin = $%d", len(args))
	}

	var sum float64
	if err := s.pool.QueryRow(ctx, sb.String(), args...).Scan(&sum); err != nil {
		return 0, fmt.Errorf("postgres: sum closed pnl: %w", err)
	}
	return sum, nil
}

const fillColumns = "fill_id, order_id, coin, side, size, price, closed_pnl, timestamp"

func (s *FillStore) ListClosing(ctx context.Context, account string, limit int) ([]domain.Fill, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+fillColumns+`
		FROM fills_history
		WHERE account = $1 AND closed_pnl <> 0
		ORDER BY timestamp DESC
		LIMIT $2`,
		account, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closing fills: %w", err)
	}
	defer rows.Close()
	return scanFills(rows)
}

func (s *FillStore) List(ctx context.Context, account string, opts domain.ListOpts) ([]domain.Fill, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + fillColumns + " FROM fills_history WHERE account = $1")
	args := []any{account}

	appendWindow(&sb, &args, opts)
	sb.WriteString(" ORDER BY timestamp DESC")
	appendPage(&sb, &args, opts)

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills: %w", err)
	}
	defer rows.Close()
	return scanFills(rows)
}

func scanFills(rows pgx.Rows) ([]domain.Fill, error) {
	var out []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var side string
		if err := rows.Scan(
			&f.FillID, &f.OrderID, &f.Asset, &side,
			&f.Size, &f.Price, &f.ClosedPnL, &f.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan fill row: %w", err)
		}
		f.Side = domain.Side(side)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate fill rows: %w", err)
	}
	return out, nil
}
