// Package arrowpipeline moves bar series and run output through Apache
// Arrow IPC streams.
package arrowpipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"strategy-backtester/services/engine"
)

// Config holds Arrow pipeline configuration
type Config struct {
	BatchSize int `yaml:"batch_size"`
}

var (
	BarSchema = arrow.NewSchema([]arrow.Field{
		{Name: "symbol", Type: arrow.BinaryTypes.String},
		{Name: "date", Type: arrow.FixedWidthTypes.Timestamp_s},
		{Name: "open", Type: arrow.PrimitiveTypes.Float64},
		{Name: "high", Type: arrow.PrimitiveTypes.Float64},
		{Name: "low", Type: arrow.PrimitiveTypes.Float64},
		{Name: "close", Type: arrow.PrimitiveTypes.Float64},
		{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
	}, nil)

	EquitySchema = arrow.NewSchema([]arrow.Field{
		{Name: "date", Type: arrow.FixedWidthTypes.Timestamp_s},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64},
		{Name: "cash", Type: arrow.PrimitiveTypes.Float64},
		{Name: "positions", Type: arrow.PrimitiveTypes.Float64},
	}, nil)

	LedgerSchema = arrow.NewSchema([]arrow.Field{
		{Name: "date", Type: arrow.FixedWidthTypes.Timestamp_s},
		{Name: "symbol", Type: arrow.BinaryTypes.String},
		{Name: "type", Type: arrow.BinaryTypes.String},
		{Name: "price", Type: arrow.PrimitiveTypes.Float64},
		{Name: "quantity", Type: arrow.PrimitiveTypes.Float64},
		{Name: "amount", Type: arrow.PrimitiveTypes.Float64},
		{Name: "position_after", Type: arrow.PrimitiveTypes.Float64},
		{Name: "cost_basis_after", Type: arrow.PrimitiveTypes.Float64},
		{Name: "eod_exit", Type: arrow.FixedWidthTypes.Boolean},
	}, nil)
)

// ErrSchemaMismatch is returned when a stream does not carry BarSchema.
var ErrSchemaMismatch = errors.New("arrow stream schema mismatch")

// Pipeline handles Arrow IPC encoding
type Pipeline struct {
	config Config
	mem    memory.Allocator
	logger *zap.Logger
}

// NewPipeline creates a pipeline. A nil allocator uses the Go allocator.
func NewPipeline(config Config, mem memory.Allocator, logger *zap.Logger) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = 4096
	}
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{config: config, mem: mem, logger: logger}
}

// WriteBars streams bars as BarSchema records of at most BatchSize rows,
// symbols in sorted order.
func (p *Pipeline) WriteBars(ctx context.Context, w io.Writer, bars map[string][]engine.PriceBar) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(BarSchema), ipc.WithAllocator(p.mem))

	symbols := make([]string, 0, len(bars))
	for sym := range bars {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	b := array.NewRecordBuilder(p.mem, BarSchema)
	defer b.Release()

	records := 0
	flush := func() error {
		rec := b.NewRecord()
		defer rec.Release()
		if rec.NumRows() == 0 {
			return nil
		}
		records++
		return writer.Write(rec)
	}

	for _, sym := range symbols {
		for _, bar := range bars[sym] {
			if err := ctx.Err(); err != nil {
				writer.Close()
				return err
			}
			b.Field(0).(*array.StringBuilder).Append(sym)
			b.Field(1).(*array.TimestampBuilder).Append(arrow.Timestamp(bar.Date.Unix()))
			b.Field(2).(*array.Float64Builder).Append(bar.Open)
			b.Field(3).(*array.Float64Builder).Append(bar.High)
			b.Field(4).(*array.Float64Builder).Append(bar.Low)
			b.Field(5).(*array.Float64Builder).Append(bar.Close)
			b.Field(6).(*array.Float64Builder).Append(bar.Volume)
			if b.Field(0).Len() >= p.config.BatchSize {
				if err := flush(); err != nil {
					writer.Close()
					return fmt.Errorf("write bar record: %w", err)
				}
			}
		}
	}
	if err := flush(); err != nil {
		writer.Close()
		return fmt.Errorf("write bar record: %w", err)
	}
	p.logger.Debug("bars encoded", zap.Int("symbols", len(symbols)), zap.Int("records", records))
	return writer.Close()
}

// EncodeBars returns WriteBars output as bytes.
func (p *Pipeline) EncodeBars(bars map[string][]engine.PriceBar) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.WriteBars(context.Background(), &buf, bars); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadBars decodes a BarSchema stream into per-symbol series.
func (p *Pipeline) ReadBars(r io.Reader) (map[string][]engine.PriceBar, error) {
	rdr, err := ipc.NewReader(r, ipc.WithAllocator(p.mem))
	if err != nil {
		return nil, fmt.Errorf("open arrow stream: %w", err)
	}
	defer rdr.Release()
	if !rdr.Schema().Equal(BarSchema) {
		return nil, ErrSchemaMismatch
	}

	out := make(map[string][]engine.PriceBar)
	for rdr.Next() {
		rec := rdr.Record()
		syms := rec.Column(0).(*array.String)
		dates := rec.Column(1).(*array.Timestamp)
		open := rec.Column(2).(*array.Float64)
		high := rec.Column(3).(*array.Float64)
		low := rec.Column(4).(*array.Float64)
		closes := rec.Column(5).(*array.Float64)
		vol := rec.Column(6).(*array.Float64)
		for i := 0; i < int(rec.NumRows()); i++ {
			sym := syms.Value(i)
			out[sym] = append(out[sym], engine.PriceBar{
				Date:   time.Unix(int64(dates.Value(i)), 0).UTC(),
				Open:   open.Value(i),
				High:   high.Value(i),
				Low:    low.Value(i),
				Close:  closes.Value(i),
				Volume: vol.Value(i),
			})
		}
	}
	if err := rdr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read arrow stream: %w", err)
	}
	return out, nil
}

// EncodeEquity serializes a value history as one EquitySchema record.
func (p *Pipeline) EncodeEquity(history []engine.ValuePoint) ([]byte, error) {
	b := array.NewRecordBuilder(p.mem, EquitySchema)
	defer b.Release()
	for _, v := range history {
		b.Field(0).(*array.TimestampBuilder).Append(arrow.Timestamp(v.Date.Unix()))
		b.Field(1).(*array.Float64Builder).Append(v.Value)
		b.Field(2).(*array.Float64Builder).Append(v.Cash)
		b.Field(3).(*array.Float64Builder).Append(v.Positions)
	}
	return p.encodeRecord(EquitySchema, b)
}

// EncodeLedger serializes transactions as one LedgerSchema record.
func (p *Pipeline) EncodeLedger(txs []engine.Transaction) ([]byte, error) {
	b := array.NewRecordBuilder(p.mem, LedgerSchema)
	defer b.Release()
	for _, tx := range txs {
		b.Field(0).(*array.TimestampBuilder).Append(arrow.Timestamp(tx.Date.Unix()))
		b.Field(1).(*array.StringBuilder).Append(tx.Symbol)
		b.Field(2).(*array.StringBuilder).Append(string(tx.Type))
		b.Field(3).(*array.Float64Builder).Append(tx.Price)
		b.Field(4).(*array.Float64Builder).Append(tx.Quantity)
		b.Field(5).(*array.Float64Builder).Append(tx.Amount)
		b.Field(6).(*array.Float64Builder).Append(tx.PositionAfter)
		b.Field(7).(*array.Float64Builder).Append(tx.CostBasisAfter)
		b.Field(8).(*array.BooleanBuilder).Append(tx.DayTrading != nil && tx.DayTrading.EODExit)
	}
	return p.encodeRecord(LedgerSchema, b)
}

func (p *Pipeline) encodeRecord(schema *arrow.Schema, b *array.RecordBuilder) ([]byte, error) {
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(p.mem))
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write Arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close Arrow writer: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadEquity decodes EncodeEquity output.
func (p *Pipeline) ReadEquity(r io.Reader) ([]engine.ValuePoint, error) {
	rdr, err := ipc.NewReader(r, ipc.WithAllocator(p.mem))
	if err != nil {
		return nil, fmt.Errorf("open arrow stream: %w", err)
	}
	defer rdr.Release()
	if !rdr.Schema().Equal(EquitySchema) {
		return nil, ErrSchemaMismatch
	}

	var out []engine.ValuePoint
	for rdr.Next() {
		rec := rdr.Record()
		dates := rec.Column(0).(*array.Timestamp)
		value := rec.Column(1).(*array.Float64)
		cash := rec.Column(2).(*array.Float64)
		pos := rec.Column(3).(*array.Float64)
		for i := 0; i < int(rec.NumRows()); i++ {
			out = append(out, engine.ValuePoint{
				Date:      time.Unix(int64(dates.Value(i)), 0).UTC(),
				Value:     value.Value(i),
				Cash:      cash.Value(i),
				Positions: pos.Value(i),
			})
		}
	}
	if err := rdr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read arrow stream: %w", err)
	}
	return out, nil
}
