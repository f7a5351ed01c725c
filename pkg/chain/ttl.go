package chain

import (
	"math"
	"time"
)

// TTLStrategy determines the TTL each layer receives for one write.
type TTLStrategy interface {
	// GetTTL returns the TTL for layerIndex in a chain of layerCount layers.
	GetTTL(layerIndex, layerCount int, baseTTL time.Duration) time.Duration
}

// UniformTTLStrategy uses the same TTL for all layers.
type UniformTTLStrategy struct{}

func (s *UniformTTLStrategy) GetTTL(layerIndex, layerCount int, baseTTL time.Duration) time.Duration {
	return baseTTL
}

// DecayingTTLStrategy shortens the TTL of the faster layers: with three
// layers and a factor of 0.5 they get 1/4, 1/2 and the full base TTL.
type DecayingTTLStrategy struct {
	DecayFactor float64
}

func (s *DecayingTTLStrategy) GetTTL(layerIndex, layerCount int, baseTTL time.Duration) time.Duration {
	if s.DecayFactor <= 0 || s.DecayFactor >= 1 || layerIndex >= layerCount-1 {
		return baseTTL
	}
	if layerIndex < 0 {
		layerIndex = 0
	}

	factor := math.Pow(s.DecayFactor, float64(layerCount-1-layerIndex))
	return time.Duration(float64(baseTTL) * factor)
}

// CustomTTLStrategy uses explicit TTL values for each layer.
type CustomTTLStrategy struct {
	TTLs []time.Duration
}

// GetTTL returns the configured TTL for a layer, or baseTTL when none is set.
func (s *CustomTTLStrategy) GetTTL(layerIndex, layerCount int, baseTTL time.Duration) time.Duration {
	if layerIndex >= 0 && layerIndex < len(s.TTLs) && s.TTLs[layerIndex] > 0 {
		return s.TTLs[layerIndex]
	}
	return baseTTL
}
