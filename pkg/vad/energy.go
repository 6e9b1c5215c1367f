package vad

import "math"

// defaultEnergyFloor is the RMS level mapped to probability 0.5. Typical
// microphone noise sits well below it, voiced speech well above.
const defaultEnergyFloor = 0.02

// EnergyDetector scores windows by normalized RMS energy. It serves as the
// fallback engine when the silero model is unavailable and as a
// deterministic engine in tests. Stateless, safe for concurrent use.
type EnergyDetector struct {
	floor float64
}

// NewEnergyDetector creates an energy detector. floor is the RMS level
// mapped to probability 0.5; pass 0 for the default.
func NewEnergyDetector(floor float64) *EnergyDetector {
	if floor <= 0 {
		floor = defaultEnergyFloor
	}
	return &EnergyDetector{floor: floor}
}

// Infer implements DetectorInterface. The probability is rms/(rms+floor),
// which is 0 for digital silence and approaches 1 for loud sustained input.
func (d *EnergyDetector) Infer(samples []float32) (float32, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	return float32(rms / (rms + d.floor)), nil
}

// Reset implements DetectorInterface. The detector carries no state.
func (d *EnergyDetector) Reset() error {
	return nil
}

// Destroy implements DetectorInterface.
func (d *EnergyDetector) Destroy() error {
	return nil
}

var _ DetectorInterface = (*EnergyDetector)(nil)
