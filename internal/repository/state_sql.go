package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"FXEngine/internal/domain/models"
	domrepo "FXEngine/internal/domain/repository"
)

// SQLStateStore keeps one RiskState row per account in sqlite or postgres.
type SQLStateStore struct {
	db      *sql.DB
	driver  string
	account string
	now     func() time.Time
}

// OpenSQLStateStore opens driver ("sqlite3" or "postgres") at dsn and makes
// sure the table exists.
func OpenSQLStateStore(ctx context.Context, driver, dsn, account string) (*SQLStateStore, error) {
	if driver != "sqlite3" && driver != "postgres" {
		return nil, fmt.Errorf("unsupported state driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	s := NewSQLStateStore(db, driver, account)
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewSQLStateStore(db *sql.DB, driver, account string) *SQLStateStore {
	if account == "" {
		account = "default"
	}
	return &SQLStateStore{db: db, driver: driver, account: account, now: time.Now}
}

func (s *SQLStateStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS risk_state (
		account    TEXT PRIMARY KEY,
		payload    TEXT NOT NULL,
		reset_date TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create risk_state: %w", err)
	}
	return nil
}

// ph returns the n-th bind placeholder for the driver.
func (s *SQLStateStore) ph(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStateStore) Load(ctx context.Context) (*models.RiskState, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM risk_state WHERE account = "+s.ph(1), s.account).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select risk_state: %w", err)
	}
	var st models.RiskState
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return nil, fmt.Errorf("decode risk_state: %w", err)
	}
	return &st, nil
}

func (s *SQLStateStore) Save(ctx context.Context, st *models.RiskState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	q := fmt.Sprintf(`INSERT INTO risk_state (account, payload, reset_date, updated_at)
		VALUES (%s, %s, %s, %s)
		ON CONFLICT (account) DO UPDATE SET
			payload = excluded.payload,
			reset_date = excluded.reset_date,
			updated_at = excluded.updated_at`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	if _, err := s.db.ExecContext(ctx, q, s.account, string(payload), st.LastResetDate, s.now().UTC()); err != nil {
		return fmt.Errorf("upsert risk_state: %w", err)
	}
	return nil
}

func (s *SQLStateStore) Close() error { return s.db.Close() }

var _ domrepo.StateStore = (*SQLStateStore)(nil)
