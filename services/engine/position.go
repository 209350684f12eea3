package engine

import (
	"math"
	"sort"
)

// Portfolio is the mutable ledger of one run. Quantity sign encodes
// direction and PositionCost carries the same sign as its quantity.
type Portfolio struct {
	Cash         float64
	Positions    map[string]float64
	PositionCost map[string]float64
	Transactions []Transaction
	ValueHistory []ValuePoint
}

func NewPortfolio(cash float64) *Portfolio {
	return &Portfolio{
		Cash:         cash,
		Positions:    make(map[string]float64),
		PositionCost: make(map[string]float64),
	}
}

// AvgCost is |cost|/|quantity|, zero when flat.
func (p *Portfolio) AvgCost(symbol string) float64 {
	qty := p.Positions[symbol]
	if qty == 0 {
		return 0
	}
	return math.Abs(p.PositionCost[symbol]) / math.Abs(qty)
}

// AvgCosts reports AvgCost for every symbol the ledger has touched.
func (p *Portfolio) AvgCosts() map[string]float64 {
	out := make(map[string]float64, len(p.Positions))
	for sym := range p.Positions {
		out[sym] = p.AvgCost(sym)
	}
	return out
}

// OpenSymbols lists symbols with a non-zero position in sorted order.
func (p *Portfolio) OpenSymbols() []string {
	out := make([]string, 0, len(p.Positions))
	for sym, qty := range p.Positions {
		if qty != 0 {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// MarkToMarket values cash plus every open position at priceOf. It
// returns the total and the positions component.
func (p *Portfolio) MarkToMarket(priceOf func(symbol string) (float64, bool)) (total, positions float64) {
	total = p.Cash
	for _, sym := range p.OpenSymbols() {
		price, ok := priceOf(sym)
		if !ok {
			continue
		}
		v := p.Positions[sym] * price
		positions += v
		total += v
	}
	return total, positions
}

func (p *Portfolio) record(tx Transaction) Transaction {
	tx.PositionAfter = p.Positions[tx.Symbol]
	tx.CostBasisAfter = p.PositionCost[tx.Symbol]
	p.Transactions = append(p.Transactions, tx)
	return tx
}

// snapshot copies the ledger maps so a Result does not alias live state.
func (p *Portfolio) snapshot() (positions, cost map[string]float64) {
	positions = make(map[string]float64, len(p.Positions))
	cost = make(map[string]float64, len(p.PositionCost))
	for k, v := range p.Positions {
		positions[k] = v
	}
	for k, v := range p.PositionCost {
		cost[k] = v
	}
	return positions, cost
}
