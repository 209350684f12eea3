package strategies

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-backtester/services/engine"
)

const dipDoc = `{
  "name": "dip",
  "actions": [
    {
      "type": "BUY",
      "condition": {"type": "simple", "metric": "percent_change", "operator": "less_than", "value": -2},
      "amount": {"type": "fixed_amount", "value": "$1,000"}
    },
    {
      "type": "sell",
      "timeframe": "weekly",
      "condition": {"type": "pattern", "pattern": "rsi_overbought"},
      "amount": {"type": "percentage", "value": "5%"}
    }
  ],
  "universe": {"symbols": ["aapl", " AAPL", "msft"]},
  "timeRange": {"start": "2024-01-01", "end": "2024-06-30T00:00:00Z"}
}`

func TestDecode(t *testing.T) {
	s, err := Decode([]byte(dipDoc))
	require.NoError(t, err)

	assert.Equal(t, "dip", s.Name)
	assert.Equal(t, []string{"AAPL", "MSFT"}, s.Universe.Symbols)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), s.TimeRange.Start)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), s.TimeRange.End)

	require.Len(t, s.Actions, 2)
	assert.Equal(t, engine.ActionBuy, s.Actions[0].Type)
	assert.Equal(t, engine.TimeframeDaily, s.Actions[0].Timeframe)
	require.NotNil(t, s.Actions[0].Amount.Value)
	assert.Equal(t, 1000.0, *s.Actions[0].Amount.Value)
	assert.Equal(t, engine.TimeframeWeekly, s.Actions[1].Timeframe)
	assert.Equal(t, engine.PatternCondition{Pattern: "rsi_overbought"}, s.Actions[1].Condition)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`{"actions": [{"type": "buy", "condition": {"type": "fuzzy"}}]}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"timeRange": {"start": "last tuesday"}}`))
	assert.ErrorContains(t, err, "timeRange.start")

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	s, err := Decode([]byte(dipDoc))
	require.NoError(t, err)

	data, err := Encode(s)
	require.NoError(t, err)
	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "momentum.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: fade
actions:
  - type: short
    condition:
      type: consecutive
      days: 3
      direction: up
    amount:
      type: shares
      value: 10
universe:
  symbols: [tsla]
timeRange:
  start: "2024-02-01"
  end: "2024-03-01"
`), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"TSLA"}, s.Universe.Symbols)
	require.Len(t, s.Actions, 1)
	assert.Equal(t, engine.ConsecutiveCondition{Days: 3, Direction: engine.DirectionUp}, s.Actions[0].Condition)
}

func TestPresetsValidate(t *testing.T) {
	tr := engine.TimeRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	names := PresetNames()
	require.Len(t, names, 8)
	assert.IsIncreasing(t, names)

	for _, name := range names {
		s, err := FromPreset(name, []string{"spy"}, tr)
		require.NoError(t, err, name)
		warnings, err := engine.Validate(s)
		assert.NoError(t, err, name)
		assert.Empty(t, warnings, name)
	}
}

func TestFromPresetIsolation(t *testing.T) {
	a, err := FromPreset("dip_buyer", nil, engine.TimeRange{})
	require.NoError(t, err)
	b, err := FromPreset("dip_buyer", nil, engine.TimeRange{})
	require.NoError(t, err)

	a.Actions[0].Type = engine.ActionShort
	assert.Equal(t, engine.ActionBuy, b.Actions[0].Type)
}

func TestUnknownPreset(t *testing.T) {
	_, err := FromPreset("yolo", nil, engine.TimeRange{})
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestPresetRunsEndToEnd(t *testing.T) {
	s, err := FromPreset("dip_buyer", []string{"ABC"}, engine.TimeRange{})
	require.NoError(t, err)

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := map[string][]engine.PriceBar{"ABC": {
		{Date: day, Open: 100, High: 100, Low: 100, Close: 100, Volume: 1},
		{Date: day.AddDate(0, 0, 1), Open: 97, High: 97, Low: 97, Close: 97, Volume: 1},
	}}
	res := engine.Run(s, bars)
	require.Empty(t, res.Error)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, engine.TxBuy, res.Transactions[0].Type)
	assert.InDelta(t, 1000.0, res.Transactions[0].Amount, 1e-9)
}
