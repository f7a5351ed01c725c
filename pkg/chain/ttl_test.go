package chain

import (
	"testing"
	"time"
)

func TestUniformTTLStrategy(t *testing.T) {
	strategy := &UniformTTLStrategy{}
	baseTTL := time.Hour

	for i := 0; i < 5; i++ {
		if ttl := strategy.GetTTL(i, 5, baseTTL); ttl != baseTTL {
			t.Errorf("Layer %d: expected %v, got %v", i, baseTTL, ttl)
		}
	}
}

func TestDecayingTTLStrategy(t *testing.T) {
	tests := []struct {
		name        string
		decayFactor float64
		layer       int
		layers      int
		expected    time.Duration
	}{
		{"L1 of three", 0.5, 0, 3, 2 * time.Hour},
		{"L2 of three", 0.5, 1, 3, 4 * time.Hour},
		{"last layer keeps base", 0.5, 2, 3, 8 * time.Hour},
		{"L1 of two", 0.25, 0, 2, 2 * time.Hour},
		{"single layer", 0.5, 0, 1, 8 * time.Hour},
		{"factor out of range", 1.5, 0, 3, 8 * time.Hour},
		{"zero factor", 0, 0, 3, 8 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy := &DecayingTTLStrategy{DecayFactor: tt.decayFactor}
			if ttl := strategy.GetTTL(tt.layer, tt.layers, 8*time.Hour); ttl != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, ttl)
			}
		})
	}
}

func TestCustomTTLStrategy(t *testing.T) {
	strategy := &CustomTTLStrategy{TTLs: []time.Duration{time.Minute, 0}}
	base := time.Hour

	tests := []struct {
		layer    int
		expected time.Duration
	}{
		{0, time.Minute},
		{1, base}, // zero entry falls back
		{2, base}, // beyond the slice
	}
	for _, tt := range tests {
		if ttl := strategy.GetTTL(tt.layer, 3, base); ttl != tt.expected {
			t.Errorf("Layer %d: expected %v, got %v", tt.layer, tt.expected, ttl)
		}
	}
}
