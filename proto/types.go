// Package proto defines the wire types shared by the REST and gRPC
// surfaces. Money and quantities travel as decimal strings.
package proto

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"strategy-backtester/services/engine"
)

const dateLayout = "2006-01-02"

// BacktestRequest carries either an inline strategy document or a preset
// name. Symbols and dates override the strategy's universe and range.
type BacktestRequest struct {
	Strategy json.RawMessage `json:"strategy,omitempty"`
	Preset   string          `json:"preset,omitempty"`
	Symbols  []string        `json:"symbols,omitempty"`
	Start    string          `json:"start,omitempty"`
	End      string          `json:"end,omitempty"`
}

type GetBacktestRequest struct {
	JobID string `json:"job_id"`
}

type Position struct {
	Symbol    string `json:"symbol"`
	Quantity  string `json:"quantity"`
	CostBasis string `json:"cost_basis"`
	AvgPrice  string `json:"avg_price"`
}

type DayTrade struct {
	Entry       bool   `json:"entry,omitempty"`
	EODExit     bool   `json:"eod_exit,omitempty"`
	EntryPrice  string `json:"entry_price"`
	ExitPrice   string `json:"exit_price,omitempty"`
	RealizedPnL string `json:"realized_pnl,omitempty"`
}

type Transaction struct {
	Date             string    `json:"date"`
	Symbol           string    `json:"symbol"`
	Type             string    `json:"type"`
	Price            string    `json:"price"`
	Quantity         string    `json:"quantity"`
	Amount           string    `json:"amount"`
	AmountType       string    `json:"amount_type"`
	AmountValue      string    `json:"amount_value"`
	PositionAfter    string    `json:"position_after"`
	CostBasisAfter   string    `json:"cost_basis_after"`
	ConditionDetails string    `json:"condition_details"`
	DayTrade         *DayTrade `json:"day_trade,omitempty"`
}

type EquityPoint struct {
	Date      string `json:"date"`
	Value     string `json:"value"`
	Cash      string `json:"cash"`
	Positions string `json:"positions"`
}

type Metrics struct {
	StartDate        string  `json:"start_date"`
	EndDate          string  `json:"end_date"`
	TotalReturn      float64 `json:"total_return"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	ValuesConsistent bool    `json:"values_consistent"`
	FinalValue       string  `json:"final_value"`
	ReconciledValue  string  `json:"reconciled_value"`
	TradeCount       int     `json:"trade_count"`
	DayTrades        int     `json:"day_trades"`
	DayTradeWins     int     `json:"day_trade_wins"`
}

type RunManifest struct {
	JobID         string `json:"job_id"`
	EngineVersion string `json:"engine_version"`
	ConfigHash    string `json:"config_hash"`
	StrategyHash  string `json:"strategy_hash"`
	DataChecksum  string `json:"data_checksum"`
	Symbols       int    `json:"symbols"`
	Bars          int    `json:"bars"`
	CreatedAt     int64  `json:"created_at"`
}

type BacktestResponse struct {
	JobID           string         `json:"job_id"`
	Status          string         `json:"status"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	Cash            string         `json:"cash,omitempty"`
	Positions       []*Position    `json:"positions,omitempty"`
	Transactions    []*Transaction `json:"transactions,omitempty"`
	EquityCurve     []*EquityPoint `json:"equity_curve,omitempty"`
	Metrics         *Metrics       `json:"metrics,omitempty"`
	Manifest        *RunManifest   `json:"manifest,omitempty"`
	Warnings        []string       `json:"warnings,omitempty"`
	Placeholders    []string       `json:"placeholders,omitempty"`
	Error           *APIError      `json:"error,omitempty"`
}

type Preset struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func money(v float64) string { return decimal.NewFromFloat(v).Round(4).String() }
func qty(v float64) string   { return decimal.NewFromFloat(v).Round(8).String() }

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

// FromResult converts an engine result into its wire form. A result with
// Error set becomes a DATA_NOT_FOUND response.
func FromResult(jobID, status string, res *engine.Result, m engine.Manifest, createdAt time.Time, elapsed time.Duration) *BacktestResponse {
	resp := &BacktestResponse{
		JobID:           jobID,
		Status:          status,
		ExecutionTimeMs: elapsed.Milliseconds(),
		Manifest: &RunManifest{
			JobID:         jobID,
			EngineVersion: m.EngineVersion,
			ConfigHash:    m.ConfigHash,
			StrategyHash:  m.StrategyHash,
			DataChecksum:  m.DataChecksum,
			Symbols:       m.Symbols,
			Bars:          m.Bars,
			CreatedAt:     createdAt.Unix(),
		},
	}
	if res == nil {
		resp.Error = ErrExecutionFailed.WithDetails("no result")
		return resp
	}
	if res.Error != "" {
		resp.Error = ErrDataNotFound.WithDetails(res.Error)
		return resp
	}

	resp.Cash = money(res.Cash)
	symbols := make([]string, 0, len(res.Positions))
	for s := range res.Positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		resp.Positions = append(resp.Positions, &Position{
			Symbol:    s,
			Quantity:  qty(res.Positions[s]),
			CostBasis: money(res.PositionCost[s]),
			AvgPrice:  money(res.PositionAvgCost[s]),
		})
	}
	for _, tx := range res.Transactions {
		resp.Transactions = append(resp.Transactions, transaction(tx))
	}
	for _, p := range res.ValueHistory {
		resp.EquityCurve = append(resp.EquityCurve, &EquityPoint{
			Date:      date(p.Date),
			Value:     money(p.Value),
			Cash:      money(p.Cash),
			Positions: money(p.Positions),
		})
	}
	mt := res.Metrics
	resp.Metrics = &Metrics{
		StartDate:        date(mt.StartDate),
		EndDate:          date(mt.EndDate),
		TotalReturn:      mt.TotalReturn,
		MaxDrawdown:      mt.MaxDrawdown,
		SharpeRatio:      mt.SharpeRatio,
		ValuesConsistent: mt.ValuesConsistent,
		FinalValue:       money(mt.FinalValue),
		ReconciledValue:  money(mt.ReconciledValue),
		TradeCount:       mt.TradeCount,
		DayTrades:        mt.DayTrades,
		DayTradeWins:     mt.DayTradeWins,
	}
	return resp
}

func transaction(tx engine.Transaction) *Transaction {
	out := &Transaction{
		Date:             date(tx.Date),
		Symbol:           tx.Symbol,
		Type:             string(tx.Type),
		Price:            money(tx.Price),
		Quantity:         qty(tx.Quantity),
		Amount:           money(tx.Amount),
		AmountType:       string(tx.AmountType),
		AmountValue:      money(tx.AmountValue),
		PositionAfter:    qty(tx.PositionAfter),
		CostBasisAfter:   money(tx.CostBasisAfter),
		ConditionDetails: tx.ConditionDetails,
	}
	if dt := tx.DayTrading; dt != nil {
		out.DayTrade = &DayTrade{
			Entry:      dt.Entry,
			EODExit:    dt.EODExit,
			EntryPrice: money(dt.EntryPrice),
		}
		if dt.EODExit {
			out.DayTrade.ExitPrice = money(dt.ExitPrice)
			out.DayTrade.RealizedPnL = money(dt.RealizedPnL)
		}
	}
	return out
}
