package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name   string
		value  interface{}
		format string
		want   string
	}{
		{"default decimals", 12.3456, "", "12.35"},
		{"column decimals", 12.3456, "1.3", "12.346"},
		{"no decimals", 12.6, "1.0", "13"},
		{"bad format", 1.5, "wide", "1.50"},
		{"string", "BUY", "1.2", "BUY"},
		{"int", int64(42), "", "42"},
		{"missing", nil, "", "-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatValue(tt.value, tt.format))
		})
	}
}

func TestFormatMetricsSorted(t *testing.T) {
	got := formatMetrics(map[string]interface{}{"rsi": 28.456, "close": 101.0, "trend": "up"})
	assert.Equal(t, "close=101.00 rsi=28.46 trend=up", got)
	assert.Empty(t, formatMetrics(nil))
}
