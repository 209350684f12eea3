package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeRows struct {
	rows [][]any
	pos  int
	err  error
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: want %d columns, got %d", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *time.Time:
			*d = v.(time.Time)
		case *string:
			*d = v.(string)
		case *uint64:
			*d = v.(uint64)
		case *decimal.Decimal:
			*d = v.(decimal.Decimal)
		case **decimal.Decimal:
			*d, _ = v.(*decimal.Decimal)
		default:
			return fmt.Errorf("scan: unsupported %T", dest[i])
		}
	}
	return nil
}

func (r *fakeRows) Close() error { return nil }
func (r *fakeRows) Err() error   { return r.err }

type fakeBatch struct {
	conn *fakeConn
	rows [][]any
}

func (b *fakeBatch) Append(v ...any) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Send() error {
	b.conn.sent = append(b.conn.sent, b.rows...)
	b.conn.sends++
	return nil
}

type fakeConn struct {
	execs   []string
	queries []string
	results map[string]*fakeRows
	sent    [][]any
	sends   int
	execErr error
}

func (c *fakeConn) Ping(context.Context) error { return nil }

func (c *fakeConn) Exec(_ context.Context, q string, _ ...any) error {
	c.execs = append(c.execs, q)
	return c.execErr
}

func (c *fakeConn) Query(_ context.Context, q string, _ ...any) (Rows, error) {
	c.queries = append(c.queries, q)
	for prefix, rows := range c.results {
		if strings.Contains(q, prefix) {
			return rows, nil
		}
	}
	return &fakeRows{}, nil
}

func (c *fakeConn) PrepareBatch(context.Context, string) (Batch, error) {
	return &fakeBatch{conn: c}, nil
}

func (c *fakeConn) Close() error { return nil }

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestEnsureSchema(t *testing.T) {
	conn := &fakeConn{}
	c := NewClient(conn, "", "", zaptest.NewLogger(t))
	require.NoError(t, c.EnsureSchema(context.Background()))
	require.Len(t, conn.execs, 3)
	assert.Contains(t, conn.execs[0], "CREATE DATABASE IF NOT EXISTS backtest")
	assert.Contains(t, conn.execs[1], "backtest.daily_bars")
	assert.Contains(t, conn.execs[1], "ReplacingMergeTree(version)")
	assert.Contains(t, conn.execs[2], "backtest.ingest_ledger")
}

func TestEnsureSchemaPropagatesErrors(t *testing.T) {
	conn := &fakeConn{execErr: errors.New("readonly")}
	err := NewClient(conn, "db", "bars", nil).EnsureSchema(context.Background())
	assert.ErrorContains(t, err, "create database")
}

func TestQueryDailyBars(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	conn := &fakeConn{results: map[string]*fakeRows{
		"FROM md.bars FINAL": {rows: [][]any{
			{day, dec("10.5"), dec("11"), dec("10"), decimal.RequireFromString("10.75"), dec("1200")},
			{day.AddDate(0, 0, 1), (*decimal.Decimal)(nil), (*decimal.Decimal)(nil), (*decimal.Decimal)(nil), decimal.RequireFromString("11"), (*decimal.Decimal)(nil)},
		}},
	}}
	c := NewClient(conn, "md", "bars", nil)

	bars, err := c.QueryDailyBars(context.Background(), "AAA", day, day.AddDate(0, 0, 5))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "AAA", bars[0].Symbol)
	assert.True(t, bars[0].Open.Equal(decimal.RequireFromString("10.5")))
	assert.Nil(t, bars[1].Open)
	assert.Nil(t, bars[1].Volume)
	assert.True(t, bars[1].Close.Equal(decimal.NewFromInt(11)))
}

func TestQueryDailyBarsRowsError(t *testing.T) {
	conn := &fakeConn{results: map[string]*fakeRows{"FINAL": {err: errors.New("broken pipe")}}}
	_, err := NewClient(conn, "", "", nil).QueryDailyBars(context.Background(), "AAA", time.Time{}, time.Now())
	assert.ErrorContains(t, err, "broken pipe")
}

func TestBatchWriterFlushesBySize(t *testing.T) {
	conn := &fakeConn{}
	c := NewClient(conn, "", "", nil)
	w := c.NewBatchWriter("csv", 2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Add(ctx, DailyBar{Symbol: "AAA", Close: decimal.NewFromInt(int64(i))}))
	}
	assert.Equal(t, 2, conn.sends)
	require.NoError(t, w.Close(ctx))
	assert.Equal(t, 3, conn.sends)
	assert.Equal(t, 5, w.Written())
	require.Len(t, conn.sent, 5)
	assert.Equal(t, "csv", conn.sent[0][7])
}

func TestIngestFileIsIdempotent(t *testing.T) {
	content := []byte("date,open,high,low,close,volume\n")
	bars := []DailyBar{{Symbol: "AAA", Close: decimal.NewFromInt(1)}}
	ctx := context.Background()

	fresh := &fakeConn{}
	res, err := NewClient(fresh, "", "", nil).IngestFile(ctx, "AAA.csv", "csv", content, bars, 10)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, res.Rows)
	require.Len(t, fresh.execs, 1)
	assert.Contains(t, fresh.execs[0], "ingest_ledger")

	seen := &fakeConn{results: map[string]*fakeRows{
		"FROM backtest.ingest_ledger": {rows: [][]any{{"AAA.csv", res.FileSHA, uint64(1), "csv"}}},
	}}
	again, err := NewClient(seen, "", "", nil).IngestFile(ctx, "AAA.csv", "csv", content, bars, 10)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Zero(t, seen.sends)
	assert.Empty(t, seen.execs)
}

func TestDSNHost(t *testing.T) {
	assert.Equal(t, "ch:9000", dsnHost("clickhouse://user:pw@ch:9000?secure=false"))
	assert.Equal(t, "ch:9440", dsnHost("clickhouse://ch:9440/default"))
	assert.Equal(t, "db:9000", dsnHost("db:9000"))
	assert.Equal(t, "localhost:9000", dsnHost(""))
}
