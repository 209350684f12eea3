package engine

import (
	"errors"
	"math"
	"time"
)

var (
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrInvalidPrice     = errors.New("invalid execution price")
	ErrUnknownAction    = errors.New("unknown action type")
)

// Order is a sized instruction against one symbol at one price.
type Order struct {
	Date    time.Time
	Symbol  string
	Action  ActionType
	Price   float64
	Size    OrderSize
	Details string
}

// byShares reports whether the order was sized in shares rather than currency.
func (o Order) byShares() bool {
	return o.Size.Type == AmountShares && !o.Size.Defaulted
}

// Execute applies o to the ledger and appends the resulting transaction.
// Buys fail with ErrInsufficientCash when cash is short; nothing is mutated
// on error.
func (p *Portfolio) Execute(o Order) (Transaction, error) {
	if !(o.Price > 0) || math.IsInf(o.Price, 0) {
		return Transaction{}, ErrInvalidPrice
	}
	switch o.Action {
	case ActionBuy:
		return p.buy(o)
	case ActionSell:
		return p.sell(o), nil
	case ActionShort:
		return p.short(o), nil
	}
	return Transaction{}, ErrUnknownAction
}

func (p *Portfolio) buy(o Order) (Transaction, error) {
	dollars, shares := o.Size.Dollars, o.Size.Shares
	if p.Cash < dollars {
		return Transaction{}, ErrInsufficientCash
	}
	qty := p.Positions[o.Symbol]
	txType := TxBuy

	if qty < 0 {
		// cover; any excess opens a long at this price
		covered := math.Abs(qty)
		ratio := math.Min(1, shares/covered)
		p.PositionCost[o.Symbol] = p.PositionCost[o.Symbol]*(1-ratio) + math.Max(0, shares-covered)*o.Price
		txType = TxCoverShort
	} else {
		p.PositionCost[o.Symbol] += dollars
	}
	p.Positions[o.Symbol] = qty + shares
	p.Cash -= dollars

	return p.record(o.transaction(txType, shares, dollars)), nil
}

func (p *Portfolio) sell(o Order) Transaction {
	qty := p.Positions[o.Symbol]
	sellQty, amount := o.Size.Shares, o.Size.Dollars

	if o.byShares() {
		if qty > 0 && sellQty > qty {
			sellQty = qty
		}
		amount = sellQty * o.Price
	} else if qty > 0 && amount >= qty*o.Price {
		sellQty = qty
		amount = qty * o.Price
	} else {
		sellQty = amount / o.Price
	}

	txType := TxShort
	if qty > 0 {
		txType = TxSell
		ratio := math.Min(1, sellQty/qty)
		p.PositionCost[o.Symbol] *= 1 - ratio
	} else {
		p.PositionCost[o.Symbol] -= amount
	}
	p.Positions[o.Symbol] = qty - sellQty
	if p.Positions[o.Symbol] == 0 {
		p.PositionCost[o.Symbol] = 0
	}
	p.Cash += amount

	return p.record(o.transaction(txType, sellQty, amount))
}

func (p *Portfolio) short(o Order) Transaction {
	p.Positions[o.Symbol] -= o.Size.Shares
	p.PositionCost[o.Symbol] -= o.Size.Dollars
	p.Cash += o.Size.Dollars
	return p.record(o.transaction(TxShort, o.Size.Shares, o.Size.Dollars))
}

// flatten closes the whole position at price regardless of cash and zeroes
// its cost basis. It reports the realized P&L against entry.
func (p *Portfolio) flatten(date time.Time, symbol string, price, entry float64) (Transaction, bool) {
	qty := p.Positions[symbol]
	if qty == 0 {
		return Transaction{}, false
	}
	tx := Transaction{
		Date:             date,
		Symbol:           symbol,
		Price:            price,
		Quantity:         math.Abs(qty),
		Amount:           math.Abs(qty) * price,
		AmountType:       AmountShares,
		AmountValue:      math.Abs(qty),
		ConditionDetails: "EOD day-trade exit",
		DayTrading: &DayTradingFlags{
			EODExit:     true,
			EntryPrice:  entry,
			ExitPrice:   price,
			RealizedPnL: (price - entry) * qty,
		},
	}
	if qty > 0 {
		tx.Type = TxSell
		p.Cash += tx.Amount
	} else {
		tx.Type = TxCoverShort
		p.Cash -= tx.Amount
	}
	p.Positions[symbol] = 0
	p.PositionCost[symbol] = 0
	return p.record(tx), true
}

func (o Order) transaction(t TransactionType, qty, amount float64) Transaction {
	return Transaction{
		Date:             o.Date,
		Symbol:           o.Symbol,
		Type:             t,
		Price:            o.Price,
		Quantity:         qty,
		Amount:           amount,
		AmountType:       o.Size.Type,
		AmountValue:      o.Size.Value,
		ConditionDetails: o.Details,
	}
}
