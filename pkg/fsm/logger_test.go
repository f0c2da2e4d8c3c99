package fsm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildCounterModel(t *testing.T) *FsmModel {
	t.Helper()
	zero := IntValue(0)
	return NewBuilder().
		Variable("n", VarInt, &zero).
		State("S", Initial()).
		Transition("S", "S", Action("javascript", "n = n + 1")).
		Build()
}

func TestDataLoggerRecordsSeriesAcrossTicks(t *testing.T) {
	model := buildCounterModel(t)
	engine, err := NewEngine(model)
	require.NoError(t, err)

	logger := NewDataLogger(engine.bus)
	logger.Start()

	for i := 0; i < 3; i++ {
		require.NoError(t, engine.Step(nil))
	}
	logger.Stop()

	series := logger.Series("n")
	require.Len(t, series, 3)
	require.Equal(t, []float64{1, 2, 3}, []float64{series[0].Value, series[1].Value, series[2].Value})
}

func TestDataLoggerSeriesReturnsDefensiveCopy(t *testing.T) {
	model := buildCounterModel(t)
	engine, err := NewEngine(model)
	require.NoError(t, err)

	logger := NewDataLogger(engine.bus)
	logger.Start()
	require.NoError(t, engine.Step(nil))
	logger.Stop()

	series := logger.Series("n")
	series[0].Value = 999

	again := logger.Series("n")
	require.Equal(t, 1.0, again[0].Value)
}

func TestDataLoggerClearDiscardsSamples(t *testing.T) {
	model := buildCounterModel(t)
	engine, err := NewEngine(model)
	require.NoError(t, err)

	logger := NewDataLogger(engine.bus)
	logger.Start()
	require.NoError(t, engine.Step(nil))
	logger.Stop()

	require.NotEmpty(t, logger.Series("n"))
	logger.Clear()
	require.Empty(t, logger.Series("n"))
	require.Empty(t, logger.VariableNames())
}

func TestDataLoggerExportCSVHasOneRowPerTick(t *testing.T) {
	model := buildCounterModel(t)
	engine, err := NewEngine(model)
	require.NoError(t, err)

	logger := NewDataLogger(engine.bus)
	logger.Start()
	for i := 0; i < 2; i++ {
		require.NoError(t, engine.Step(nil))
	}
	logger.Stop()

	csv := logger.ExportCSV()
	lines := strings.Split(strings.TrimRight(csv, "\n"), "\n")
	require.Equal(t, "tick,n", lines[0])
	require.Len(t, lines, 3)
}
