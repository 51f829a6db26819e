package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// MetricsHistoryStore implements domain.MetricsHistoryStore on Postgres.
// Nullable ratio columns round-trip the nil "undefined" sentinel unchanged.
type MetricsHistoryStore struct {
	pool        *pgxpool.Pool
	naturalKeys bool
}

func NewMetricsHistoryStore(pool *pgxpool.Pool, naturalKeys bool) *MetricsHistoryStore {
	return &MetricsHistoryStore{pool: pool, naturalKeys: naturalKeys}
}

func (s *MetricsHistoryStore) Insert(ctx context.Context, account string, m domain.PortfolioMetrics) error {
	query := `
		INSERT INTO metrics_history (
			id, account, timestamp, account_value, total_position_value,
			total_unrealized_pnl, total_exposure, account_leverage,
			exposure_equity_ratio, margin_utilization, concentration_score,
			portfolio_heat, risk_adjusted_return, free_margin
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	if s.naturalKeys {
		query += " ON CONFLICT (account, timestamp) DO NOTHING"
	}

	_, err := s.pool.Exec(ctx, query,
		uuid.NewString(), account, m.Timestamp.UTC(), m.AccountValue,
		m.TotalPositionValue, m.TotalUnrealizedPnL, m.TotalExposure,
		m.AccountLeverage, m.ExposureEquityRatio, m.MarginUtilization,
		m.ConcentrationScore, m.PortfolioHeat, m.RiskAdjustedReturn,
		m.FreeMargin,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert metrics row: %w", err)
	}
	return nil
}

const metricsColumns = `
	timestamp, account_value, total_position_value, total_unrealized_pnl,
	total_exposure, account_leverage, exposure_equity_ratio,
	margin_utilization, concentration_score, portfolio_heat,
	risk_adjusted_return, free_margin`

func (s *MetricsHistoryStore) List(ctx context.Context, account string, opts domain.ListOpts) ([]domain.PortfolioMetrics, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + metricsColumns + " FROM metrics_history WHERE account = $1")
	args := []any{account}

	appendWindow(&sb, &args, opts)
	sb.WriteString(" ORDER BY timestamp DESC")
	appendPage(&sb, &args, opts)

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list metrics history: %w", err)
	}
	defer rows.Close()

	var out []domain.PortfolioMetrics
	for rows.Next() {
		m, err := scanMetrics(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate metrics rows: %w", err)
	}
	return out, nil
}

func (s *MetricsHistoryStore) Latest(ctx context.Context, account string) (domain.PortfolioMetrics, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+metricsColumns+" FROM metrics_history WHERE account = $1 ORDER BY timestamp DESC LIMIT 1",
		account,
	)
	m, err := scanMetrics(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PortfolioMetrics{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PortfolioMetrics{}, err
	}
	return m, nil
}

func (s *MetricsHistoryStore) AverageExposure(ctx context.Context, account string, since, until time.Time) (float64, error) {
	// COALESCE keeps the empty-window result a defined 0, not NULL.
	var avg float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(total_exposure), 0)
		FROM metrics_history
		WHERE account = $1 AND timestamp >= $2 AND timestamp <= $3`,
		account, since.UTC(), until.UTC(),
	).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("postgres: average exposure: %w", err)
	}
	return avg, nil
}

func scanMetrics(row pgx.Row) (domain.PortfolioMetrics, error) {
	var m domain.PortfolioMetrics
	err := row.Scan(
		&m.Timestamp, &m.AccountValue, &m.TotalPositionValue,
		&m.TotalUnrealizedPnL, &m.TotalExposure, &m.AccountLeverage,
		&m.ExposureEquityRatio, &m.MarginUtilization, &m.ConcentrationScore,
		&m.PortfolioHeat, &m.RiskAdjustedReturn, &m.FreeMargin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PortfolioMetrics{}, err
		}
		return domain.PortfolioMetrics{}, fmt.Errorf("postgres: scan metrics row: %w", err)
	}
	return m, nil
}
