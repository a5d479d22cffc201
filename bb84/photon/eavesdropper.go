package photon

import "math"

// An EveConfig controls an Eavesdropper. Probabilities are in [0, 1].
type EveConfig struct {
	Active             bool    `json:"active"`
	AttackProbability  float64 `json:"attackProbability"`
	DetectionThreshold float64 `json:"detectionThreshold"`
}

// Clamp returns a copy of c with both probabilities forced into [0, 1].
// Non-finite values become 0.
func (c EveConfig) Clamp() EveConfig {
	c.AttackProbability = clampUnit(c.AttackProbability)
	c.DetectionThreshold = clampUnit(c.DetectionThreshold)
	return c
}

// EveConfigFromPercent builds a clamped EveConfig from percentages, the unit
// used by the control surface.
func EveConfigFromPercent(active bool, attack, detection float64) EveConfig {
	return EveConfig{
		Active:             active,
		AttackProbability:  attack / 100,
		DetectionThreshold: detection / 100,
	}.Clamp()
}

func clampUnit(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(1, p))
}

// An Eavesdropper decides, qubit by qubit, whether Eve intercepts and whether
// that interception is flagged. It holds no state beyond its random source.
type Eavesdropper struct {
	rand Source
}

// NewEavesdropper returns an Eavesdropper drawing from src.
func NewEavesdropper(src Source) *Eavesdropper {
	return &Eavesdropper{rand: src}
}

// Decide reports whether the next qubit is intercepted under cfg, and whether
// the interception is detected. Detection models imperfect reconciliation
// sampling and is independent of whether the bit was actually disturbed.
// No random draws are made while cfg is inactive.
func (e *Eavesdropper) Decide(cfg EveConfig) (intercepted, detected bool) {
	if !cfg.Active {
		return false, false
	}
	intercepted = e.rand.Unit() < cfg.AttackProbability
	if !intercepted {
		return false, false
	}
	detected = e.rand.Unit() < cfg.DetectionThreshold
	return intercepted, detected
}
