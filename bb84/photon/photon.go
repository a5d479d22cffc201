// Package photon provides utilities for handling photon-encoded qubits: the
// randomness driving preparation and measurement, a simulated quantum channel,
// and an intercept-resend eavesdropper.
package photon

import (
	"fmt"
	"math/rand"

	"github.com/qkdlab/bb84sim/bb84/bloch"
)

// A Bit is the classical payload carried by one qubit. Only 0 and 1 are valid.
type Bit uint8

// A Basis is a polarisation basis used to prepare or measure a qubit.
type Basis uint8

const (
	// Rectilinear encodes 0 and 1 as |0⟩ and |1⟩.
	Rectilinear Basis = iota
	// Diagonal encodes 0 and 1 as |+⟩ and |−⟩.
	Diagonal
)

// String returns the conventional single-letter name of b.
func (b Basis) String() string {
	if b == Diagonal {
		return "X"
	}
	return "Z"
}

// ParseBasis is the inverse of Basis.String.
func ParseBasis(s string) (Basis, bool) {
	switch s {
	case "Z":
		return Rectilinear, true
	case "X":
		return Diagonal, true
	}
	return Rectilinear, false
}

// MarshalText implements encoding.TextMarshaler.
func (b Basis) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Basis) UnmarshalText(text []byte) error {
	v, ok := ParseBasis(string(text))
	if !ok {
		return fmt.Errorf("unknown basis %q", text)
	}
	*b = v
	return nil
}

// Encode returns the canonical Bloch state preparing bit in basis.
func Encode(bit Bit, basis Basis) bloch.State {
	if basis == Rectilinear {
		if bit == 0 {
			return bloch.State{Theta: 0, Phi: 0}
		}
		return bloch.State{Theta: 180, Phi: 0}
	}
	if bit == 0 {
		return bloch.State{Theta: 90, Phi: 0}
	}
	return bloch.State{Theta: 90, Phi: 180}
}

// A Source provides the independent, uniform random draws the protocol
// needs. Implementations need not be safe for concurrent use.
type Source interface {
	// Bit returns 0 or 1 with equal probability.
	Bit() Bit
	// Basis returns Rectilinear or Diagonal with equal probability.
	Basis() Basis
	// Unit returns a float in [0, 1) for probability comparisons.
	Unit() float64
}

// NewSource returns a Source backed by r. Seeding r makes every draw, and so
// every simulation built on it, reproducible. For unconditional security
// this would need to be truly random; here it never is.
func NewSource(r *rand.Rand) Source {
	return randSource{r: r}
}

type randSource struct {
	r *rand.Rand
}

func (s randSource) Bit() Bit {
	return Bit(s.r.Intn(2))
}

func (s randSource) Basis() Basis {
	return Basis(s.r.Intn(2))
}

func (s randSource) Unit() float64 {
	return s.r.Float64()
}

// Axis returns the Bloch axis whose poles encode bits in b.
func (b Basis) Axis() bloch.Axis {
	if b == Diagonal {
		return bloch.XAxis
	}
	return bloch.ZAxis
}

// A Measurement is the result of measuring an arbitrary state in a Basis.
type Measurement struct {
	Basis  Basis   `json:"basis"`
	P0     float64 `json:"prob0"`
	P1     float64 `json:"prob1"`
	Result Bit     `json:"result"`
}

// Measure measures s in b, drawing the outcome from src. Rectilinear reads
// |0⟩ as 0; Diagonal reads |+⟩ as 0.
func Measure(s bloch.State, b Basis, src Source) Measurement {
	p0, p1 := bloch.ProbabilitiesAlong(s, b.Axis())
	m := Measurement{Basis: b, P0: p0, P1: p1, Result: 1}
	if src.Unit() < p0 {
		m.Result = 0
	}
	return m
}
