// Package clickhouse stores and serves daily OHLCV bars.
package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Config struct {
	DSN         string        `yaml:"dsn"`
	Database    string        `yaml:"database"`
	Table       string        `yaml:"table"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Rows is the subset of driver.Rows the client reads.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// Batch is the subset of driver.Batch the writer uses.
type Batch interface {
	Append(v ...any) error
	Send() error
}

// Conn is the subset of driver.Conn the package needs.
type Conn interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	PrepareBatch(ctx context.Context, query string) (Batch, error)
	Close() error
}

type nativeConn struct{ conn driver.Conn }

func (n nativeConn) Ping(ctx context.Context) error { return n.conn.Ping(ctx) }
func (n nativeConn) Exec(ctx context.Context, q string, args ...any) error {
	return n.conn.Exec(ctx, q, args...)
}
func (n nativeConn) Query(ctx context.Context, q string, args ...any) (Rows, error) {
	return n.conn.Query(ctx, q, args...)
}
func (n nativeConn) PrepareBatch(ctx context.Context, q string) (Batch, error) {
	return n.conn.PrepareBatch(ctx, q)
}
func (n nativeConn) Close() error { return n.conn.Close() }

// DailyBar is one stored row. Nil OHLV fields were missing at the source.
type DailyBar struct {
	Symbol string
	Date   time.Time
	Open   *decimal.Decimal
	High   *decimal.Decimal
	Low    *decimal.Decimal
	Close  decimal.Decimal
	Volume *decimal.Decimal
}

type Client struct {
	conn     Conn
	database string
	table    string
	logger   *zap.Logger
}

// Open dials ClickHouse over the native protocol and pings it.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{dsnHost(cfg.DSN)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: timeout,
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(60),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return NewClient(nativeConn{conn}, cfg.Database, cfg.Table, logger), nil
}

// NewClient wraps an existing connection.
func NewClient(conn Conn, database, table string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if database == "" {
		database = "backtest"
	}
	if table == "" {
		table = "daily_bars"
	}
	return &Client{conn: conn, database: database, table: table, logger: logger}
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }

func (c *Client) qualified(table string) string { return c.database + "." + table }

// EnsureSchema creates the database, the bar table and the ingest ledger.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", c.database)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	barsDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol LowCardinality(String),
			date Date,
			open Nullable(Decimal(18, 6)),
			high Nullable(Decimal(18, 6)),
			low Nullable(Decimal(18, 6)),
			close Decimal(18, 6),
			volume Nullable(Decimal(38, 6)),
			source LowCardinality(String),
			ingested_at DateTime64(3),
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (symbol, date)
	`, c.qualified(c.table))
	if err := c.conn.Exec(ctx, barsDDL); err != nil {
		return fmt.Errorf("create %s: %w", c.table, err)
	}
	ledgerDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			source_file String,
			file_sha256 String,
			row_count UInt64,
			source LowCardinality(String),
			inserted_at DateTime DEFAULT now()
		)
		ENGINE = ReplacingMergeTree
		ORDER BY file_sha256
	`, c.qualified(ledgerTable))
	if err := c.conn.Exec(ctx, ledgerDDL); err != nil {
		return fmt.Errorf("create %s: %w", ledgerTable, err)
	}
	return nil
}

// QueryDailyBars returns a symbol's bars in [from, to], oldest first.
func (c *Client) QueryDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]DailyBar, error) {
	q := fmt.Sprintf(`
		SELECT date, open, high, low, close, volume
		FROM %s FINAL
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date`, c.qualified(c.table))

	start := time.Now()
	rows, err := c.conn.Query(ctx, q, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []DailyBar
	for rows.Next() {
		b := DailyBar{Symbol: symbol}
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan %s: %w", symbol, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", symbol, err)
	}
	c.logger.Debug("daily bars loaded",
		zap.String("symbol", symbol), zap.Int("rows", len(out)), zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// dsnHost extracts host:port from a clickhouse:// DSN. A bare host:port is
// returned unchanged.
func dsnHost(dsn string) string {
	host := "localhost:9000"
	if dsn == "" {
		return host
	}
	rest := dsn
	if i := strings.Index(rest, "://"); i != -1 {
		rest = rest[i+3:]
	}
	if i := strings.LastIndex(rest, "@"); i != -1 {
		rest = rest[i+1:]
	}
	if j := strings.IndexAny(rest, "/?"); j != -1 {
		rest = rest[:j]
	}
	if rest != "" {
		host = rest
	}
	return host
}
