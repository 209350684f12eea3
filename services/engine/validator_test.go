package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsEmptyStrategy(t *testing.T) {
	_, err := Validate(Strategy{})
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 2)
}

func TestValidateWarnsOnDeadConditions(t *testing.T) {
	s := single("AAA",
		StrategyAction{Type: ActionBuy, Condition: PatternCondition{Pattern: "cup_and_handle"}},
		StrategyAction{Type: ActionSell, Condition: TechnicalCondition{Indicator: "vwap"}},
		StrategyAction{Type: ActionBuy, Condition: SimpleCondition{Metric: "beta", Operator: "approx"}},
	)
	warnings, err := Validate(s)
	require.NoError(t, err)
	assert.Len(t, warnings, 4)
}

func TestValidateRejectsUnknownAction(t *testing.T) {
	s := single("AAA", StrategyAction{Type: "hold", Condition: SimpleCondition{Metric: MetricPrice, Operator: OpEqual}})
	_, err := Validate(s)
	assert.ErrorContains(t, err, `unknown type "hold"`)
}

func TestBuildManifestIsStable(t *testing.T) {
	s := single("AAA", StrategyAction{Type: ActionBuy, Condition: SimpleCondition{Metric: MetricPrice, Operator: OpGreaterThan, Value: 1}, Amount: FixedAmount(100)})
	bars := flatBars(1, 2, 3)
	reversed := []PriceBar{bars[2], bars[1], bars[0]}

	a, err := BuildManifest(DefaultConfig(), s, map[string][]PriceBar{"AAA": bars})
	require.NoError(t, err)
	b, err := BuildManifest(Config{}, s, map[string][]PriceBar{"AAA": reversed})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, 3, a.Bars)
	assert.Equal(t, Version, a.EngineVersion)

	bars[0].Close = 9
	c, err := BuildManifest(DefaultConfig(), s, map[string][]PriceBar{"AAA": bars})
	require.NoError(t, err)
	assert.NotEqual(t, a.DataChecksum, c.DataChecksum)
	assert.Equal(t, a.StrategyHash, c.StrategyHash)
}

func TestConfigDefaultsFillZeros(t *testing.T) {
	cfg := Config{InitialCash: 500}.withDefaults()
	assert.Equal(t, 500.0, cfg.InitialCash)
	assert.Equal(t, 30, cfg.HistoryCap)
	assert.Equal(t, 0.01, cfg.ReconcileEpsilon)
}
