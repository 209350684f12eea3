package clickhouse

import (
	"context"
	"crypto/sha256"
	"fmt"

	"go.uber.org/zap"
)

const ledgerTable = "ingest_ledger"

// IngestLedger records one ingested source file.
type IngestLedger struct {
	SourceFile string
	FileSHA    string
	RowCount   uint64
	Source     string
}

// IngestResult reports what IngestFile did.
type IngestResult struct {
	FileSHA string
	Rows    int
	Skipped bool
}

// IngestFile writes bars parsed from content unless a file with the same
// checksum was ingested before.
func (c *Client) IngestFile(ctx context.Context, name, source string, content []byte, bars []DailyBar, batchSize int) (IngestResult, error) {
	sum := fmt.Sprintf("%x", sha256.Sum256(content))
	res := IngestResult{FileSHA: sum}

	seen, err := c.ledgerEntry(ctx, sum)
	if err != nil {
		return res, fmt.Errorf("ledger check: %w", err)
	}
	if seen != nil {
		c.logger.Info("file already ingested, skipping",
			zap.String("file", name), zap.String("sha256", sum), zap.Uint64("rows", seen.RowCount))
		res.Skipped = true
		return res, nil
	}

	w := c.NewBatchWriter(source, batchSize)
	for _, b := range bars {
		if err := w.Add(ctx, b); err != nil {
			return res, err
		}
	}
	if err := w.Close(ctx); err != nil {
		return res, err
	}
	res.Rows = w.Written()

	if err := c.conn.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (source_file, file_sha256, row_count, source) VALUES (?, ?, ?, ?)", c.qualified(ledgerTable)),
		name, sum, uint64(res.Rows), source); err != nil {
		return res, fmt.Errorf("ledger record: %w", err)
	}
	c.logger.Info("file ingested", zap.String("file", name), zap.Int("rows", res.Rows))
	return res, nil
}

func (c *Client) ledgerEntry(ctx context.Context, sum string) (*IngestLedger, error) {
	rows, err := c.conn.Query(ctx,
		fmt.Sprintf("SELECT source_file, file_sha256, row_count, source FROM %s WHERE file_sha256 = ? LIMIT 1", c.qualified(ledgerTable)),
		sum)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var l IngestLedger
	if err := rows.Scan(&l.SourceFile, &l.FileSHA, &l.RowCount, &l.Source); err != nil {
		return nil, err
	}
	return &l, nil
}
