package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS fair_price_alerts (
        id            BIGSERIAL PRIMARY KEY,
        symbol        TEXT        NOT NULL,
        deviation_pct NUMERIC     NOT NULL,
        last_price    NUMERIC     NOT NULL,
        fair_price    NUMERIC     NOT NULL,
        volume_24h    NUMERIC     NOT NULL DEFAULT 0,
        direction     TEXT        NOT NULL,
        delivery      TEXT        NOT NULL,
        error         TEXT,
        alert_ts      TIMESTAMPTZ NOT NULL,
        created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS fair_price_alerts_alert_ts_idx ON fair_price_alerts (alert_ts DESC);
    CREATE INDEX IF NOT EXISTS fair_price_alerts_symbol_idx ON fair_price_alerts (symbol, alert_ts DESC);`

	insertAlertSQL = `INSERT INTO fair_price_alerts (
        symbol,
        deviation_pct,
        last_price,
        fair_price,
        volume_24h,
        direction,
        delivery,
        error,
        alert_ts
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    RETURNING id, created_at;`

	selectAlertColumns = `SELECT
        id,
        symbol,
        deviation_pct::text,
        last_price::text,
        fair_price::text,
        volume_24h::text,
        direction,
        delivery,
        error,
        alert_ts,
        created_at
    FROM fair_price_alerts`

	listRecentAlertsSQL = selectAlertColumns + `
    ORDER BY alert_ts DESC
    LIMIT $1;`

	listAlertsBetweenSQL = selectAlertColumns + `
    WHERE alert_ts >= $1
      AND alert_ts < $2
    ORDER BY alert_ts;`

	countAlertsSQL = `SELECT COUNT(*) FROM fair_price_alerts;`

	deleteAlertsBeforeSQL = `DELETE FROM fair_price_alerts WHERE alert_ts < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the PostgreSQL-backed alert log.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the alert table and its indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
// The lock lives on a dedicated connection held until unlock is called.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// session locks also drop when the connection closes
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// InsertAlert persists an alert emission and returns it with id and created_at set.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	var errMsg interface{}
	if alert.Error != nil {
		errMsg = *alert.Error
	}

	rec := alert
	if err := pool.QueryRow(ctx, insertAlertSQL,
		alert.Symbol,
		alert.DeviationPct.String(),
		alert.LastPrice.String(),
		alert.FairPrice.String(),
		alert.Volume24.String(),
		alert.Direction,
		string(alert.Delivery),
		errMsg,
		alert.AlertTS,
	).Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	return rec, nil
}

// ListRecentAlerts lists the most recent alerts, newest first.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	return collectAlerts(rows, limit)
}

// ListAlertsBetween lists alerts within [from, to) in ascending time order.
func (s *Store) ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts between: %w", queryErr)
	}
	return collectAlerts(rows, 0)
}

// CountAlerts counts stored alerts.
func (s *Store) CountAlerts(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countAlertsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count alerts: %w", scanErr)
	}
	return count, nil
}

// DeleteAlertsBefore prunes alerts older than the cutoff and reports how many went.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete alerts before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func collectAlerts(rows pgx.Rows, capacity int) ([]AlertRecord, error) {
	defer rows.Close()

	alerts := make([]AlertRecord, 0, max(capacity, 0))
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanAlert(rows pgx.Rows) (AlertRecord, error) {
	var (
		rec          AlertRecord
		deviationStr string
		lastStr      string
		fairStr      string
		volumeStr    string
		delivery     string
		errMsg       sql.NullString
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.Symbol,
		&deviationStr,
		&lastStr,
		&fairStr,
		&volumeStr,
		&rec.Direction,
		&delivery,
		&errMsg,
		&rec.AlertTS,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var err error
	if rec.DeviationPct, err = decimal.NewFromString(deviationStr); err != nil {
		return AlertRecord{}, fmt.Errorf("parse deviation pct: %w", err)
	}
	if rec.LastPrice, err = decimal.NewFromString(lastStr); err != nil {
		return AlertRecord{}, fmt.Errorf("parse last price: %w", err)
	}
	if rec.FairPrice, err = decimal.NewFromString(fairStr); err != nil {
		return AlertRecord{}, fmt.Errorf("parse fair price: %w", err)
	}
	if rec.Volume24, err = decimal.NewFromString(volumeStr); err != nil {
		return AlertRecord{}, fmt.Errorf("parse volume: %w", err)
	}

	rec.Delivery = Delivery(delivery)
	if errMsg.Valid {
		msg := errMsg.String
		rec.Error = &msg
	}
	return rec, nil
}

var (
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
