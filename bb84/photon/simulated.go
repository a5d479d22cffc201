package photon

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// A Channel simulates a noiseless quantum channel between a sender and a
// receiver, optionally passing each qubit through an intercept-resend
// eavesdropper on the way.
type Channel struct {
	rand Source
}

// NewSimulatedChannel creates a Channel which draws measurement outcomes for
// mismatched bases, and the eavesdropper's basis choices, from src.
func NewSimulatedChannel(src Source) *Channel {
	return &Channel{rand: src}
}

// A Transmission is the outcome of sending one qubit down a Channel.
type Transmission struct {
	// Measured is the bit the receiver read.
	Measured Bit
	// Received is the Bloch vector of the qubit that reached the receiver.
	Received r3.Vec

	Intercepted bool
	// EveBasis and EveBit are what the eavesdropper measured. They are only
	// meaningful when Intercepted is set.
	EveBasis Basis
	EveBit   Bit
}

// InformationGain estimates what the eavesdropper learned about the sender's
// bit: 1 when it was measured in the sender's basis, 0.5 when the basis was wrong,
// and 0 when the qubit was not intercepted.
func (t Transmission) InformationGain(sendBasis Basis) float64 {
	switch {
	case !t.Intercepted:
		return 0
	case t.EveBasis == sendBasis:
		return 1
	default:
		return 0.5
	}
}

// Transmit sends bit, prepared in sendBasis, to a receiver measuring in
// recvBasis. If eavesdropped is set, the qubit is first measured by an
// eavesdropper in an independently drawn basis and re-prepared from that
// result.
func (c *Channel) Transmit(bit Bit, sendBasis, recvBasis Basis, eavesdropped bool) Transmission {
	var t Transmission
	if eavesdropped {
		t.Intercepted = true
		t.EveBasis = c.rand.Basis()
		t.EveBit = c.measure(bit, sendBasis, t.EveBasis)
		bit, sendBasis = t.EveBit, t.EveBasis
	}
	t.Measured = c.measure(bit, sendBasis, recvBasis)
	t.Received = Encode(bit, sendBasis).Vector()
	return t
}

// measure collapses a qubit prepared as (bit, prepBasis) in measBasis.
// Measuring in the wrong basis yields a uniformly random outcome.
func (c *Channel) measure(bit Bit, prepBasis, measBasis Basis) Bit {
	if prepBasis == measBasis {
		return bit
	}
	return c.rand.Bit()
}
