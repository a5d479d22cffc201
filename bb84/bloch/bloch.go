// Package bloch maps single-qubit states between spherical angles and points
// on the Bloch sphere.
//
// Angles at the package boundary are in degrees: θ is the polar angle measured
// from |0⟩ and φ the azimuth measured from |+⟩.
package bloch

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultTolerance is the angular distance, in degrees, within which Label
// considers a vector to be one of the named basis states.
const DefaultTolerance = 1.0

// Names of well-known states returned by Label.
const (
	Zero          = "|0⟩"
	One           = "|1⟩"
	Plus          = "|+⟩"
	Minus         = "|−⟩"
	PlusI         = "|+i⟩"
	MinusI        = "|−i⟩"
	Superposition = "|ψ⟩"
)

// A State is a pure qubit state given by its Bloch angles in degrees. States
// are values; every update produces a new State.
type State struct {
	Theta float64 `json:"theta"`
	Phi   float64 `json:"phi"`
}

// NewState returns the State with the given angles, clamping θ into [0, 180]
// and wrapping φ into [0, 360). Non-finite inputs are treated as 0.
func NewState(theta, phi float64) State {
	if math.IsNaN(theta) || math.IsInf(theta, 0) {
		theta = 0
	}
	if math.IsNaN(phi) || math.IsInf(phi, 0) {
		phi = 0
	}
	theta = math.Max(0, math.Min(180, theta))
	return State{Theta: theta, Phi: wrap(phi)}
}

// wrap maps phi into [0, 360).
func wrap(phi float64) float64 {
	phi = math.Mod(phi, 360)
	if phi < 0 {
		phi += 360
	}
	// A tiny negative phi rounds up to exactly 360 above.
	if phi >= 360 {
		phi = 0
	}
	return phi
}

// Vector returns the Cartesian point on the Bloch sphere for s.
func (s State) Vector() r3.Vec {
	return Project(s.Theta, s.Phi)
}

// Project converts the angles theta and phi, in degrees, into Cartesian
// coordinates on the unit sphere.
func Project(theta, phi float64) r3.Vec {
	th := theta * math.Pi / 180
	ph := phi * math.Pi / 180
	return r3.Vec{
		X: math.Sin(th) * math.Cos(ph),
		Y: math.Sin(th) * math.Sin(ph),
		Z: math.Cos(th),
	}
}

// Angles is the inverse of Project. On the poles, where φ is undefined, the
// returned azimuth is 0. v need not be normalised.
func Angles(v r3.Vec) State {
	n := r3.Norm(v)
	if n == 0 {
		return State{}
	}
	z := math.Max(-1, math.Min(1, v.Z/n))
	theta := math.Acos(z) * 180 / math.Pi
	var phi float64
	if math.Abs(v.X) > 1e-10 || math.Abs(v.Y) > 1e-10 {
		phi = wrap(math.Atan2(v.Y, v.X) * 180 / math.Pi)
	}
	return State{Theta: theta, Phi: phi}
}

// Probabilities returns the probabilities of measuring 0 and 1 in the
// rectilinear basis.
func Probabilities(s State) (p0, p1 float64) {
	half := s.Theta * math.Pi / 360
	c := math.Cos(half)
	p0 = c * c
	return p0, 1 - p0
}

// An Axis is one of the three Cartesian axes of the Bloch sphere.
type Axis int

const (
	XAxis Axis = iota
	YAxis
	ZAxis
)

func (a Axis) String() string {
	switch a {
	case XAxis:
		return "X"
	case YAxis:
		return "Y"
	case ZAxis:
		return "Z"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// ParseAxis is the inverse of Axis.String. Lower case is accepted.
func ParseAxis(s string) (Axis, bool) {
	switch strings.ToUpper(s) {
	case "X":
		return XAxis, true
	case "Y":
		return YAxis, true
	case "Z":
		return ZAxis, true
	}
	return ZAxis, false
}

// Unit returns the unit vector along a.
func (a Axis) Unit() r3.Vec {
	switch a {
	case XAxis:
		return r3.Vec{X: 1}
	case YAxis:
		return r3.Vec{Y: 1}
	}
	return r3.Vec{Z: 1}
}

// Rotate applies the single-qubit rotation R_a(degrees) to s. On the sphere
// this turns the Bloch vector by degrees about a, counter-clockwise when
// looking down the axis towards the origin.
func Rotate(s State, a Axis, degrees float64) State {
	rot := r3.NewRotation(degrees*math.Pi/180, a.Unit())
	return Angles(rot.Rotate(s.Vector()))
}

// ProbabilitiesAlong returns the probabilities of the two outcomes of
// measuring s along a: p0 for the eigenstate at the positive end of the axis.
func ProbabilitiesAlong(s State, a Axis) (p0, p1 float64) {
	p0 = math.Max(0, math.Min(1, (1+r3.Dot(s.Vector(), a.Unit()))/2))
	return p0, 1 - p0
}

var named = []struct {
	name string
	vec  r3.Vec
}{
	{Zero, r3.Vec{Z: 1}},
	{One, r3.Vec{Z: -1}},
	{Plus, r3.Vec{X: 1}},
	{Minus, r3.Vec{X: -1}},
	{PlusI, r3.Vec{Y: 1}},
	{MinusI, r3.Vec{Y: -1}},
}

// Label names the well-known state v lies on, within DefaultTolerance, or
// returns Superposition.
func Label(v r3.Vec) string {
	return LabelWithin(v, DefaultTolerance)
}

// LabelWithin is Label with an explicit tolerance in degrees.
func LabelWithin(v r3.Vec, tolerance float64) string {
	if r3.Norm(v) == 0 {
		return Superposition
	}
	limit := math.Cos(tolerance * math.Pi / 180)
	for _, n := range named {
		if r3.Cos(v, n.vec) >= limit {
			return n.name
		}
	}
	return Superposition
}

// Trajectory linearly interpolates the angles between from and to, returning
// n+1 states including both endpoints. n < 1 is treated as 1.
func Trajectory(from, to State, n int) []State {
	if n < 1 {
		n = 1
	}
	r := make([]State, 0, n+1)
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		r = append(r, State{
			Theta: from.Theta + t*(to.Theta-from.Theta),
			Phi:   from.Phi + t*(to.Phi-from.Phi),
		})
	}
	return r
}

// Info bundles the quantities a renderer typically wants for one state.
type Info struct {
	State State   `json:"angles"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	P0    float64 `json:"prob0"`
	P1    float64 `json:"prob1"`
	Label string  `json:"label"`
}

// Describe computes the Info for s.
func Describe(s State) Info {
	v := s.Vector()
	p0, p1 := Probabilities(s)
	return Info{
		State: s,
		X:     v.X,
		Y:     v.Y,
		Z:     v.Z,
		P0:    p0,
		P1:    p1,
		Label: Label(v),
	}
}
