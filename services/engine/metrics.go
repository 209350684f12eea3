package engine

import "math"

// computeMetrics derives the summary statistics and the reconciliation
// check from a finished ledger.
func computeMetrics(book *Portfolio, cfg Config) Metrics {
	var m Metrics
	hist := book.ValueHistory
	if len(hist) == 0 {
		return m
	}
	m.StartDate = hist[0].Date
	m.EndDate = hist[len(hist)-1].Date
	m.FinalValue = hist[len(hist)-1].Value
	m.TotalReturn = (m.FinalValue - cfg.InitialCash) / cfg.InitialCash * 100
	m.MaxDrawdown = MaxDrawdown(hist)
	m.SharpeRatio = Sharpe(hist, cfg.TradingDaysPerYear)

	m.ReconciledValue = Reconcile(book)
	m.ValuesConsistent = math.Abs(m.ReconciledValue-m.FinalValue) <= cfg.ReconcileEpsilon

	m.TradeCount = len(book.Transactions)
	for _, tx := range book.Transactions {
		if tx.DayTrading != nil && tx.DayTrading.EODExit {
			m.DayTrades++
			if tx.DayTrading.RealizedPnL > 0 {
				m.DayTradeWins++
			}
		}
	}
	return m
}

// MaxDrawdown is the largest percentage fall from a running peak.
func MaxDrawdown(hist []ValuePoint) float64 {
	peak, worst := math.Inf(-1), 0.0
	for _, p := range hist {
		if p.Value > peak {
			peak = p.Value
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Value) / peak * 100; dd > worst {
			worst = dd
		}
	}
	return worst
}

// Sharpe annualizes the mean over the population deviation of simple daily
// returns. Flat or single-point series score zero.
func Sharpe(hist []ValuePoint, periodsPerYear float64) float64 {
	returns := make([]float64, 0, len(hist))
	for i := 1; i < len(hist); i++ {
		base := hist[i-1].Value
		if base == 0 {
			continue
		}
		returns = append(returns, (hist[i].Value-base)/base)
	}
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// Reconcile recomputes portfolio value as cash plus each open position at
// the price of its most recent transaction.
func Reconcile(book *Portfolio) float64 {
	lastPrice := make(map[string]float64)
	for _, tx := range book.Transactions {
		lastPrice[tx.Symbol] = tx.Price
	}
	total := book.Cash
	for _, sym := range book.OpenSymbols() {
		total += book.Positions[sym] * lastPrice[sym]
	}
	return total
}
