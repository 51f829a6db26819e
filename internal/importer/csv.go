// Package importer backfills the history tables from the CSV logs written by
// the legacy file-based tracker, so a migration to the database keeps the
// accumulated history.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// timestampLayouts covers the formats the legacy logger wrote: RFC 3339 from
// the exporter and the naive datetime repr from older log files.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// Summary reports one import run.
type Summary struct {
	Imported int
	Failed   int
}

// Importer streams legacy CSV rows into the history stores in batches.
type Importer struct {
	positions domain.PositionHistoryStore
	metrics   domain.MetricsHistoryStore
	batchSize int
	logger    *slog.Logger
}

// New creates an Importer writing through the given stores.
func New(positions domain.PositionHistoryStore, metrics domain.MetricsHistoryStore, batchSize int, logger *slog.Logger) *Importer {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Importer{
		positions: positions,
		metrics:   metrics,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "importer")),
	}
}

// ImportPositions reads a position_history CSV and inserts its rows for the
// given account. Rows sharing a timestamp are written as one snapshot tick. A
// failed tick is counted and skipped; the run continues.
func (im *Importer) ImportPositions(ctx context.Context, account, path string) (Summary, error) {
	var sum Summary

	rows, err := readCSV(path)
	if err != nil {
		return sum, fmt.Errorf("importer: read %s: %w", path, err)
	}
	im.logger.InfoContext(ctx, "importing position history",
		slog.String("path", path), slog.Int("rows", len(rows)))

	// Group consecutive rows by timestamp so each tick becomes one insert.
	var tickTS time.Time
	var tick []domain.Position
	flush := func() {
		if len(tick) == 0 {
			return
		}
		if err := im.positions.InsertSnapshot(ctx, account, tickTS, tick); err != nil {
			im.logger.WarnContext(ctx, "tick import failed",
				slog.Time("timestamp", tickTS), slog.String("error", err.Error()))
			sum.Failed += len(tick)
		} else {
			sum.Imported += len(tick)
		}
		tick = nil
	}

	for _, row := range rows {
		ts, err := parseTimestamp(row["timestamp"])
		if err != nil {
			sum.Failed++
			continue
		}
		p, err := parsePositionRow(row)
		if err != nil {
			im.logger.WarnContext(ctx, "bad position row", slog.String("error", err.Error()))
			sum.Failed++
			continue
		}
		if !ts.Equal(tickTS) {
			flush()
			tickTS = ts
		}
		tick = append(tick, p)
	}
	flush()

	im.logger.InfoContext(ctx, "position import finished",
		slog.Int("imported", sum.Imported), slog.Int("failed", sum.Failed))
	return sum, nil
}

// ImportMetrics reads a metrics_history CSV and inserts its rows for the
// given account.
func (im *Importer) ImportMetrics(ctx context.Context, account, path string) (Summary, error) {
	var sum Summary

	rows, err := readCSV(path)
	if err != nil {
		return sum, fmt.Errorf("importer: read %s: %w", path, err)
	}
	im.logger.InfoContext(ctx, "importing metrics history",
		slog.String("path", path), slog.Int("rows", len(rows)))

	for i, row := range rows {
		m, err := parseMetricsRow(row)
		if err != nil {
			im.logger.WarnContext(ctx, "bad metrics row", slog.String("error", err.Error()))
			sum.Failed++
			continue
		}
		if err := im.metrics.Insert(ctx, account, m); err != nil {
			im.logger.WarnContext(ctx, "metrics row import failed",
				slog.Time("timestamp", m.Timestamp), slog.String("error", err.Error()))
			sum.Failed++
			continue
		}
		sum.Imported++

		if (i+1)%im.batchSize == 0 {
			im.logger.InfoContext(ctx, "import progress",
				slog.Int("done", i+1), slog.Int("total", len(rows)))
		}
	}

	im.logger.InfoContext(ctx, "metrics import finished",
		slog.Int("imported", sum.Imported), slog.Int("failed", sum.Failed))
	return sum, nil
}

// readCSV loads the file into header-keyed rows.
func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parsePositionRow(row map[string]string) (domain.Position, error) {
	p := domain.Position{
		Asset: row["coin"],
		Side:  domain.Side(strings.ToLower(row["side"])),
	}
	if p.Asset == "" {
		return p, fmt.Errorf("missing coin")
	}
	if p.Side != domain.SideLong && p.Side != domain.SideShort {
		return p, fmt.Errorf("bad side %q", row["side"])
	}

	var err error
	if p.Size, err = parseFloat(row["size"]); err != nil {
		return p, fmt.Errorf("size: %w", err)
	}
	if p.EntryPrice, err = parseFloat(row["entry_price"]); err != nil {
		return p, fmt.Errorf("entry_price: %w", err)
	}
	if p.Leverage, err = parseFloat(row["leverage"]); err != nil {
		return p, fmt.Errorf("leverage: %w", err)
	}
	p.LiquidationPrice = parseOptionalFloat(row["liquidation_price"])
	p.UnrealizedPnL, _ = parseFloat(row["unrealized_pnl"])
	p.RealizedPnL, _ = parseFloat(row["realized_pnl"])
	p.MarginUsed, _ = parseFloat(row["margin_used"])
	return p, nil
}

func parseMetricsRow(row map[string]string) (domain.PortfolioMetrics, error) {
	ts, err := parseTimestamp(row["timestamp"])
	if err != nil {
		return domain.PortfolioMetrics{}, err
	}

	m := domain.PortfolioMetrics{Timestamp: ts}
	if m.AccountValue, err = parseFloat(row["account_value"]); err != nil {
		return m, fmt.Errorf("account_value: %w", err)
	}
	m.TotalPositionValue, _ = parseFloat(row["total_position_value"])
	m.TotalUnrealizedPnL, _ = parseFloat(row["total_unrealized_pnl"])
	m.TotalExposure, _ = parseFloat(row["total_exposure"])
	m.ConcentrationScore, _ = parseFloat(row["concentration_score"])
	m.PortfolioHeat, _ = parseFloat(row["portfolio_heat"])
	m.FreeMargin, _ = parseFloat(row["free_margin"])
	m.AccountLeverage = parseOptionalFloat(row["account_leverage"])
	m.ExposureEquityRatio = parseOptionalFloat(row["exposure_equity_ratio"])
	m.MarginUtilization = parseOptionalFloat(row["margin_utilization"])
	m.RiskAdjustedReturn = parseOptionalFloat(row["risk_adjusted_return"])
	return m, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// parseOptionalFloat maps the legacy undefined markers (empty cell, NaN, inf)
// to nil.
func parseOptionalFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
