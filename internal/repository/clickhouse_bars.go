package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FXEngine/internal/domain/models"
	domrepo "FXEngine/internal/domain/repository"
	"FXEngine/internal/services/pips"
	applogger "FXEngine/pkg/logger"
)

// ClickHouseBars serves bars from a ClickHouse candle table, for deployments
// without a market data bridge.
type ClickHouseBars struct {
	db      *sql.DB
	table   string
	account string
	l       *applogger.Logger
	rateTF  domrepo.Timeframe
}

func NewClickHouseBars(db *sql.DB, database, accountCurrency string, l *applogger.Logger) *ClickHouseBars {
	table := "fx_candles"
	if database != "" {
		table = database + "." + table
	}
	if accountCurrency == "" {
		accountCurrency = "USD"
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &ClickHouseBars{db: db, table: table, account: accountCurrency, l: l, rateTF: domrepo.TF1m}
}

// Schema returns the DDL of the candle table.
func (s *ClickHouseBars) Schema() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		pair LowCardinality(String),
		tf LowCardinality(String),
		bucket DateTime('UTC'),
		open Float64,
		high Float64,
		low Float64,
		close Float64,
		volume Float64
	) ENGINE = ReplacingMergeTree
	ORDER BY (pair, tf, bucket)`, s.table)
}

// GetBars returns the latest size bars oldest first.
func (s *ClickHouseBars) GetBars(ctx context.Context, pair string, tf domrepo.Timeframe, size int) (models.BarSeries, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("%w: unsupported timeframe %s", domrepo.ErrNoData, tf)
	}
	start := time.Now()
	q := fmt.Sprintf(`
		SELECT bucket, open, high, low, close, volume
		FROM %s
		WHERE pair = ? AND tf = ?
		ORDER BY bucket DESC
		LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, pair, string(tf), size)
	if err != nil {
		s.l.Error("clickhouse get_bars query error",
			applogger.String("pair", pair),
			applogger.String("tf", string(tf)),
			applogger.Error(err))
		return nil, fmt.Errorf("%w: get bars: %v", domrepo.ErrTransient, err)
	}
	defer rows.Close()

	out := make(models.BarSeries, 0, size)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("%w: scan bar: %v", domrepo.ErrTransient, err)
		}
		b.Time = b.Time.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", domrepo.ErrTransient, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s %s", domrepo.ErrNoData, pair, tf)
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse get_bars ok",
		applogger.String("pair", pair),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration", time.Since(start)))
	return out, nil
}

// GetPipValue converts through the latest 1m close of the conversion symbol.
func (s *ClickHouseBars) GetPipValue(ctx context.Context, pair string, lots float64) (float64, error) {
	rate, err := pips.QuoteRate(pair, s.account, func(sym string) (float64, error) {
		bars, err := s.GetBars(ctx, sym, s.rateTF, 1)
		if err != nil {
			return 0, err
		}
		return bars.Last().Close, nil
	})
	if err != nil {
		return 0, fmt.Errorf("pip value %s: %w", pair, err)
	}
	return pips.Value(pair, lots, rate), nil
}

var _ domrepo.MarketDataProvider = (*ClickHouseBars)(nil)
