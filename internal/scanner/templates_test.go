package scanner

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExamples(t *testing.T) {
	list := Examples()
	require.NotEmpty(t, list)
	assert.True(t, sort.SliceIsSorted(list, func(i, j int) bool { return list[i].Name < list[j].Name }))

	tmpl, ok := Example("rsi_oversold")
	require.True(t, ok)
	assert.NotEmpty(t, tmpl.Code)

	_, ok = Example("does_not_exist")
	assert.False(t, ok)
}

func TestExamplesRun(t *testing.T) {
	provider := &mapProvider{series: map[string]*Series{
		"UP": seriesFromCloses("UP", rising(60, 100), 2_000_000),
	}}
	engine := newTestEngine(provider)

	for _, tmpl := range Examples() {
		t.Run(tmpl.Name, func(t *testing.T) {
			v := Validate(tmpl.Code)
			require.True(t, v.Valid, "errors: %v", v.Errors)

			schema, err := ParseSchema(tmpl.Parameters)
			require.NoError(t, err)
			params, err := MergeParams(schema, nil, BatchSettings{})
			require.NoError(t, err)

			res := engine.Execute(context.Background(), Request{
				Code:   tmpl.Code,
				Tasks:  tasksFor("UP"),
				Params: params,
			})
			assert.Equal(t, StatusCompleted, res.Status)
			assert.Empty(t, res.Errors)
			assert.Equal(t, 1, res.TotalScanned)
		})
	}
}

func TestRSIExampleOverbought(t *testing.T) {
	tmpl, ok := Example("rsi_oversold")
	require.True(t, ok)

	provider := &mapProvider{series: map[string]*Series{
		"UP": seriesFromCloses("UP", rising(30, 100), 500_000),
	}}
	res := newTestEngine(provider).Execute(context.Background(), Request{Code: tmpl.Code, Tasks: tasksFor("UP")})

	require.Len(t, res.Results, 1)
	got := res.Results[0]
	assert.Equal(t, "SELL", got.Signal)
	assert.Equal(t, "overbought", got.Metrics["condition"])
	assert.InDelta(t, 90.0, got.Metrics["signal_strength"], 1e-9)
}

func TestExplorationExample(t *testing.T) {
	tmpl, ok := Example("basic_exploration")
	require.True(t, ok)

	provider := &mapProvider{series: map[string]*Series{
		"UP": seriesFromCloses("UP", rising(30, 100), 1000),
	}}
	res := newTestEngine(provider).Execute(context.Background(), Request{Code: tmpl.Code, Tasks: tasksFor("UP")})

	require.Len(t, res.Results, 1)
	row := res.Results[0]
	assert.True(t, row.IsExploration())

	names := make([]string, len(row.Columns))
	for i, c := range row.Columns {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"close", "change_pct", "rsi", "volume_ratio"}, names)
	assert.InDelta(t, 129.0, row.Metrics["close"], 1e-9)
	assert.InDelta(t, 1.0, row.Metrics["volume_ratio"], 1e-9)
}
