package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCSAT(t *testing.T) {
	tests := []struct {
		name     string
		autoRate float64
		respSecs float64
		want     float64
	}{
		{"no automation, instant response", 0, 0, 80.0},
		{"default response time", 0, 0.8, 79.9},
		{"half automated", 0.5, 0.8, 89.9},
		{"fully automated", 1, 0, 100.0},
		{"slow response gives no speed bonus", 0, 120, 70.0},
		{"cap at one hundred", 1, -30, 100.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, csat(tt.autoRate, tt.respSecs), 1e-9)
		})
	}
}

func TestRate(t *testing.T) {
	assert.Zero(t, rate(5, 0), "empty store never divides by zero")
	assert.Equal(t, 0.25, rate(1, 4))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 0.67, round2(2.0/3.0))
	assert.Equal(t, 0.0, round2(0))
}
