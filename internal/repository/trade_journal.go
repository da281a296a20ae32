package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FXEngine/internal/domain/models"
	domrepo "FXEngine/internal/domain/repository"
	"FXEngine/pkg/logger"
)

// ClickHouseJournal appends trade events and emitted signals to ClickHouse.
type ClickHouseJournal struct {
	db       *sql.DB
	database string
	lgr      *logger.Logger
}

func NewClickHouseJournal(db *sql.DB, database string, lgr *logger.Logger) *ClickHouseJournal {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &ClickHouseJournal{db: db, database: database, lgr: lgr}
}

func (j *ClickHouseJournal) table(name string) string {
	if j.database == "" {
		return name
	}
	return j.database + "." + name
}

// Schema returns the idempotent DDL for the journal tables.
func (j *ClickHouseJournal) Schema() []string {
	var stmts []string
	if j.database != "" {
		stmts = append(stmts, "CREATE DATABASE IF NOT EXISTS "+j.database)
	}
	return append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id String,
			cycle_id String,
			kind LowCardinality(String),
			pair LowCardinality(String),
			direction LowCardinality(String),
			ticket String,
			lots Float64,
			price Float64,
			pnl Float64,
			reason String,
			at DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		PARTITION BY toYYYYMM(at)
		ORDER BY (pair, at, id)`, j.table("trade_events")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			cycle_id String,
			pair LowCardinality(String),
			strategy LowCardinality(String),
			direction LowCardinality(String),
			entry Float64,
			stop_loss Float64,
			take_profit Float64,
			confidence Float64,
			trend LowCardinality(String),
			generated_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		PARTITION BY toYYYYMM(generated_at)
		ORDER BY (pair, generated_at)`, j.table("signals")),
	)
}

func (j *ClickHouseJournal) RecordEvent(ctx context.Context, ev models.TradeEvent) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, cycle_id, kind, pair, direction, ticket, lots, price, pnl, reason, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, j.table("trade_events"))
	_, err := j.db.ExecContext(ctx, q,
		ev.ID, ev.CycleID, string(ev.Kind), ev.Pair, string(ev.Direction),
		ev.Ticket, ev.Lots, ev.Price, ev.PnL, ev.Reason, ev.At.UTC(),
	)
	if err != nil {
		j.lgr.Error("journal insert event failed",
			logger.String("kind", string(ev.Kind)),
			logger.String("pair", ev.Pair),
			logger.Error(err))
		return fmt.Errorf("%w: insert trade event: %v", domrepo.ErrPersistence, err)
	}
	return nil
}

// RecordSignals writes the whole pass in one multi-row insert.
func (j *ClickHouseJournal) RecordSignals(ctx context.Context, cycleID string, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	values := make([]string, 0, len(signals))
	args := make([]interface{}, 0, len(signals)*10)
	for _, s := range signals {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			cycleID, s.Pair, s.Strategy, string(s.Direction),
			s.EntryPrice, s.StopLoss, s.TakeProfit, s.Confidence,
			string(s.Trend), s.GeneratedAt.UTC(),
		)
	}
	q := fmt.Sprintf(`INSERT INTO %s (cycle_id, pair, strategy, direction, entry, stop_loss, take_profit, confidence, trend, generated_at)
		VALUES %s`, j.table("signals"), strings.Join(values, ","))
	if _, err := j.db.ExecContext(ctx, q, args...); err != nil {
		j.lgr.Error("journal insert signals failed", logger.Int("rows", len(signals)), logger.Error(err))
		return fmt.Errorf("%w: insert signals: %v", domrepo.ErrPersistence, err)
	}
	return nil
}

// Events returns newest first. An empty pair matches every instrument.
func (j *ClickHouseJournal) Events(ctx context.Context, pair string, from, to time.Time, limit int) ([]models.TradeEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	where := "at >= ? AND at <= ?"
	args := []interface{}{from.UTC(), to.UTC()}
	if pair != "" {
		where = "pair = ? AND " + where
		args = append([]interface{}{pair}, args...)
	}
	args = append(args, limit)
	q := fmt.Sprintf(`SELECT id, cycle_id, kind, pair, direction, ticket, lots, price, pnl, reason, at
		FROM %s WHERE %s ORDER BY at DESC LIMIT ?`, j.table("trade_events"), where)

	start := time.Now()
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query trade events: %w", err)
	}
	defer rows.Close()

	var out []models.TradeEvent
	for rows.Next() {
		var (
			ev        models.TradeEvent
			kind, dir string
		)
		if err := rows.Scan(&ev.ID, &ev.CycleID, &kind, &ev.Pair, &dir, &ev.Ticket,
			&ev.Lots, &ev.Price, &ev.PnL, &ev.Reason, &ev.At); err != nil {
			return nil, fmt.Errorf("scan trade event: %w", err)
		}
		ev.Kind = models.TradeEventKind(kind)
		ev.Direction = models.Direction(dir)
		ev.At = ev.At.UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	j.lgr.Debug("journal events query ok",
		logger.String("pair", pair),
		logger.Int("rows", len(out)),
		logger.Duration("duration", time.Since(start)))
	return out, nil
}

func (j *ClickHouseJournal) Health(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close is a no-op; the connection pool belongs to pkg/clickhouse.Client.
func (j *ClickHouseJournal) Close() error { return nil }

var _ domrepo.Journal = (*ClickHouseJournal)(nil)
