package telemetry

import (
	"math/rand/v2"
	"sync"
)

// Sampler reads the current environmental values.
type Sampler interface {
	Read() (tempC float64, humidity int)
}

// Simulated reading ranges of the reference board, which has no sensor
// fitted: temperature 24.5 ±5.0 °C in 0.1 steps, humidity 55 ±10 %.
const (
	baseTempC        = 24.5
	tempSpreadTenths = 50
	baseHumidity     = 55
	humiditySpread   = 10
)

// SimulatedSampler produces plausible readings from a seeded PRNG.
type SimulatedSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedSampler returns a sampler seeded with seed.
func NewSimulatedSampler(seed uint64) *SimulatedSampler {
	return &SimulatedSampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Read returns a temperature in [19.5, 29.5) and a humidity in [45, 65).
func (s *SimulatedSampler) Read() (float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenths := s.rng.IntN(2*tempSpreadTenths) - tempSpreadTenths
	humidity := baseHumidity + s.rng.IntN(2*humiditySpread) - humiditySpread
	return baseTempC + float64(tenths)/10, humidity
}
