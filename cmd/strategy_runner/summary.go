package main

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"golang.org/x/text/message"

	"strategy-backtester/services/engine"
)

func printSummary(out io.Writer, p *message.Printer, s engine.Strategy, res *engine.Result, log *engine.EventLog, placeholders []string, elapsed time.Duration) {
	m := res.Metrics
	name := s.Name
	if name == "" {
		name = "strategy"
	}
	p.Fprintf(out, "%s over %d symbols, %s to %s (%v)\n",
		name, len(s.Universe.Symbols), m.StartDate.Format("2006-01-02"), m.EndDate.Format("2006-01-02"), elapsed.Round(time.Millisecond))
	p.Fprintf(out, "  final value      %.2f\n", m.FinalValue)
	p.Fprintf(out, "  cash             %.2f\n", res.Cash)
	p.Fprintf(out, "  total return     %.2f%%\n", m.TotalReturn)
	p.Fprintf(out, "  max drawdown     %.2f%%\n", m.MaxDrawdown)
	p.Fprintf(out, "  sharpe ratio     %.3f\n", m.SharpeRatio)
	p.Fprintf(out, "  transactions     %d\n", m.TradeCount)
	if m.DayTrades > 0 {
		p.Fprintf(out, "  day trades       %d (%d winners)\n", m.DayTrades, m.DayTradeWins)
	}
	if n := log.Count(engine.EventInsufficientCash); n > 0 {
		p.Fprintf(out, "  skipped buys     %d (insufficient cash)\n", n)
	}
	if len(placeholders) > 0 {
		p.Fprintf(out, "  placeholder data %v\n", placeholders)
	}
	if !m.ValuesConsistent {
		p.Fprintf(out, "  WARNING: reconciled value %.2f differs from final value\n", m.ReconciledValue)
	}
	for _, sym := range sortedKeys(res.Positions) {
		p.Fprintf(out, "  %-8s qty %.4f  avg cost %.2f\n", sym, res.Positions[sym], res.PositionAvgCost[sym])
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func writeEquityCSV(w io.Writer, history []engine.ValuePoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "value", "cash", "positions"}); err != nil {
		return err
	}
	for _, p := range history {
		if err := cw.Write([]string{p.Date.Format("2006-01-02"), ftoa(p.Value), ftoa(p.Cash), ftoa(p.Positions)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeLedgerCSV(w io.Writer, txs []engine.Transaction) error {
	cw := csv.NewWriter(w)
	header := []string{"date", "symbol", "type", "price", "quantity", "amount", "amount_type", "amount_value",
		"position_after", "cost_basis_after", "day_trade", "realized_pnl", "condition"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, tx := range txs {
		dayTrade, pnl := "", ""
		if dt := tx.DayTrading; dt != nil {
			switch {
			case dt.EODExit:
				dayTrade, pnl = "exit", ftoa(dt.RealizedPnL)
			case dt.Entry:
				dayTrade = "entry"
			}
		}
		rec := []string{
			tx.Date.Format("2006-01-02"), tx.Symbol, string(tx.Type), ftoa(tx.Price), ftoa(tx.Quantity),
			ftoa(tx.Amount), string(tx.AmountType), ftoa(tx.AmountValue), ftoa(tx.PositionAfter),
			ftoa(tx.CostBasisAfter), dayTrade, pnl, tx.ConditionDetails,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
