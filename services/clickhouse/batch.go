package clickhouse

import (
	"context"
	"fmt"
	"time"
)

// BatchWriter buffers bars and sends them in native batches.
type BatchWriter struct {
	client    *Client
	source    string
	batchSize int
	buffer    []DailyBar
	written   int
}

func (c *Client) NewBatchWriter(source string, batchSize int) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &BatchWriter{client: c, source: source, batchSize: batchSize, buffer: make([]DailyBar, 0, batchSize)}
}

func (w *BatchWriter) Add(ctx context.Context, bar DailyBar) error {
	w.buffer = append(w.buffer, bar)
	if len(w.buffer) >= w.batchSize {
		return w.Flush(ctx)
	}
	return nil
}

// Flush sends buffered rows. Every row in one flush shares a version so a
// re-ingest of the same file replaces rather than duplicates.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	batch, err := w.client.conn.PrepareBatch(ctx,
		fmt.Sprintf("INSERT INTO %s SETTINGS insert_deduplicate=1", w.client.qualified(w.client.table)))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	now := time.Now().UTC()
	ver := uint64(now.UnixNano())
	for _, b := range w.buffer {
		if err := batch.Append(b.Symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, w.source, now, ver); err != nil {
			return fmt.Errorf("batch append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("batch send: %w", err)
	}
	w.written += len(w.buffer)
	w.buffer = w.buffer[:0]
	return nil
}

// Written reports rows sent so far.
func (w *BatchWriter) Written() int { return w.written }

func (w *BatchWriter) Close(ctx context.Context) error { return w.Flush(ctx) }
