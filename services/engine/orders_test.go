package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func order(action ActionType, price float64, size OrderSize) Order {
	return Order{Symbol: "AAA", Action: action, Price: price, Size: size}
}

func shares(n, price float64) OrderSize {
	return OrderSize{Dollars: n * price, Shares: n, Type: AmountShares, Value: n}
}

func dollars(d, price float64) OrderSize {
	return OrderSize{Dollars: d, Shares: d / price, Type: AmountFixed, Value: d}
}

func TestShortThenCover(t *testing.T) {
	p := NewPortfolio(1000)

	tx, err := p.Execute(order(ActionShort, 10, shares(10, 10)))
	require.NoError(t, err)
	assert.Equal(t, TxShort, tx.Type)
	assert.Equal(t, -10.0, p.Positions["AAA"])
	assert.Equal(t, -100.0, p.PositionCost["AAA"])
	assert.Equal(t, 1100.0, p.Cash)

	tx, err = p.Execute(order(ActionBuy, 8, shares(4, 8)))
	require.NoError(t, err)
	assert.Equal(t, TxCoverShort, tx.Type)
	assert.InDelta(t, -6, p.Positions["AAA"], 1e-9)
	assert.InDelta(t, -60, p.PositionCost["AAA"], 1e-9)
	assert.InDelta(t, 1068, p.Cash, 1e-9)

	// covering more than the short flips long at the fill price
	tx, err = p.Execute(order(ActionBuy, 5, shares(10, 5)))
	require.NoError(t, err)
	assert.Equal(t, TxCoverShort, tx.Type)
	assert.InDelta(t, 4, p.Positions["AAA"], 1e-9)
	assert.InDelta(t, 20, p.PositionCost["AAA"], 1e-9)
	assert.InDelta(t, 5, p.AvgCost("AAA"), 1e-9)
}

func TestBuyRequiresCash(t *testing.T) {
	p := NewPortfolio(50)
	_, err := p.Execute(order(ActionBuy, 10, dollars(100, 10)))
	assert.ErrorIs(t, err, ErrInsufficientCash)
	assert.Equal(t, 50.0, p.Cash)
	assert.Empty(t, p.Transactions)
	assert.Zero(t, p.Positions["AAA"])
}

func TestInvalidPriceRejected(t *testing.T) {
	p := NewPortfolio(1000)
	_, err := p.Execute(order(ActionSell, 0, dollars(100, 1)))
	assert.ErrorIs(t, err, ErrInvalidPrice)
	_, err = p.Execute(order("hold", 10, dollars(100, 10)))
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestDollarSellCappedAtLong(t *testing.T) {
	p := NewPortfolio(1000)
	_, err := p.Execute(order(ActionBuy, 10, dollars(100, 10)))
	require.NoError(t, err)

	tx, err := p.Execute(order(ActionSell, 12, dollars(500, 12)))
	require.NoError(t, err)
	assert.Equal(t, TxSell, tx.Type)
	assert.Equal(t, 10.0, tx.Quantity)
	assert.Equal(t, 120.0, tx.Amount)
	assert.Equal(t, 0.0, p.Positions["AAA"])
	assert.Equal(t, 0.0, p.PositionCost["AAA"])
	assert.Equal(t, 0.0, p.AvgCost("AAA"))
	assert.Equal(t, 1020.0, p.Cash)
}

func TestPartialSellReducesCostProportionally(t *testing.T) {
	p := NewPortfolio(1000)
	_, err := p.Execute(order(ActionBuy, 10, dollars(100, 10)))
	require.NoError(t, err)

	_, err = p.Execute(order(ActionSell, 20, dollars(50, 20)))
	require.NoError(t, err)
	assert.InDelta(t, 7.5, p.Positions["AAA"], 1e-9)
	assert.InDelta(t, 75, p.PositionCost["AAA"], 1e-9)
	assert.InDelta(t, 10, p.AvgCost("AAA"), 1e-9, "average cost survives a partial sell")
}

func TestShareSellCappedAtLong(t *testing.T) {
	p := NewPortfolio(1000)
	_, err := p.Execute(order(ActionBuy, 10, shares(5, 10)))
	require.NoError(t, err)

	tx, err := p.Execute(order(ActionSell, 10, shares(20, 10)))
	require.NoError(t, err)
	assert.Equal(t, 5.0, tx.Quantity)
	assert.Equal(t, 0.0, p.Positions["AAA"])
}

func TestSellWhenFlatOpensShort(t *testing.T) {
	p := NewPortfolio(1000)
	tx, err := p.Execute(order(ActionSell, 10, dollars(100, 10)))
	require.NoError(t, err)
	assert.Equal(t, TxShort, tx.Type)
	assert.Equal(t, -10.0, p.Positions["AAA"])
	assert.Equal(t, -100.0, p.PositionCost["AAA"])

	tx, err = p.Execute(order(ActionSell, 10, shares(5, 10)))
	require.NoError(t, err)
	assert.Equal(t, TxShort, tx.Type)
	assert.Equal(t, -15.0, p.Positions["AAA"])
	assert.Equal(t, -150.0, p.PositionCost["AAA"])
	assert.Equal(t, 10.0, p.AvgCost("AAA"))
}

func TestFlattenIgnoresCash(t *testing.T) {
	p := NewPortfolio(0)
	p.Positions["AAA"] = -10
	p.PositionCost["AAA"] = -100

	tx, ok := p.flatten(monday, "AAA", 12, 10)
	require.True(t, ok)
	assert.Equal(t, TxCoverShort, tx.Type)
	assert.Equal(t, -120.0, p.Cash)
	assert.Equal(t, -20.0, tx.DayTrading.RealizedPnL)

	_, ok = p.flatten(monday, "AAA", 12, 10)
	assert.False(t, ok)
}
