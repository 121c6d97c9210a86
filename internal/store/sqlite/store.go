// Package sqlite 把序列写入单个 sqlite 文件，每个下载 Key 一组行。
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"candlesync/internal/market"
	"candlesync/internal/store"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

type Store struct {
	db   *sql.DB
	path string
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context, key store.Key) (market.Series, error) {
	id := key.String()
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT rows FROM series WHERE series_key = ?`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return market.Series{}, store.ErrCacheMiss
	}
	if err != nil {
		return market.Series{}, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles WHERE series_key = ?
		ORDER BY ts ASC`, id)
	if err != nil {
		return market.Series{}, err
	}
	defer rows.Close()
	candles := make([]market.Candle, 0, count)
	for rows.Next() {
		var (
			c                        market.Candle
			open, high, low, cl, vol string
		)
		if err := rows.Scan(&c.Timestamp, &open, &high, &low, &cl, &vol); err != nil {
			return market.Series{}, err
		}
		if c, err = fillPrices(c, open, high, low, cl, vol); err != nil {
			return market.Series{}, fmt.Errorf("%s ts=%d: %w", id, c.Timestamp, err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return market.Series{}, err
	}
	if len(candles) != count {
		return market.Series{}, fmt.Errorf("%s: expected %d rows, found %d", id, count, len(candles))
	}
	return market.Series{Market: key.Market, Timeframe: key.Timeframe, Candles: candles}, nil
}

// Save 在一个事务内替换该 Key 的全部行。
func (s *Store) Save(ctx context.Context, key store.Key, series market.Series) error {
	if err := key.Validate(); err != nil {
		return err
	}
	id := key.String()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM candles WHERE series_key = ?`, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (series_key, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, c := range series.Candles {
		if _, err := stmt.ExecContext(ctx, id, c.Timestamp, c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String()); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO series (series_key, market, timeframe, since, limit_n, rows, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(series_key) DO UPDATE SET
		    rows=excluded.rows,
		    saved_at=excluded.saved_at`,
		id, key.Market, key.Timeframe, key.Since, key.Limit, len(series.Candles), time.Now().UnixMilli())
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func fillPrices(c market.Candle, open, high, low, cl, vol string) (market.Candle, error) {
	var err error
	if c.Open, err = decimal.NewFromString(open); err != nil {
		return c, err
	}
	if c.High, err = decimal.NewFromString(high); err != nil {
		return c, err
	}
	if c.Low, err = decimal.NewFromString(low); err != nil {
		return c, err
	}
	if c.Close, err = decimal.NewFromString(cl); err != nil {
		return c, err
	}
	if c.Volume, err = decimal.NewFromString(vol); err != nil {
		return c, err
	}
	return c, nil
}

// 价格以 TEXT 保存，保留交易所返回的精确字面值。
func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS series (
			series_key TEXT PRIMARY KEY,
			market     TEXT NOT NULL,
			timeframe  TEXT NOT NULL,
			since      INTEGER NOT NULL,
			limit_n    INTEGER NOT NULL,
			rows       INTEGER NOT NULL DEFAULT 0,
			saved_at   INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS candles (
			series_key TEXT NOT NULL,
			ts         INTEGER NOT NULL,
			open       TEXT NOT NULL,
			high       TEXT NOT NULL,
			low        TEXT NOT NULL,
			close      TEXT NOT NULL,
			volume     TEXT NOT NULL,
			PRIMARY KEY (series_key, ts)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
