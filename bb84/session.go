package bb84

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/qkdlab/bb84sim/bb84/bitarray"
	"github.com/qkdlab/bb84sim/bb84/bloch"
	"github.com/qkdlab/bb84sim/bb84/photon"
)

// A Status is a position in the session lifecycle:
//
//	Idle -> Running -> {Stopped, Completed} -> (Reset) -> Idle
type Status int

const (
	Idle Status = iota
	Running
	Stopped
	Completed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Running:
		return "RUNNING"
	case Stopped:
		return "STOPPED"
	case Completed:
		return "COMPLETED"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// A Session runs BB84 between a simulated sender and receiver, one qubit at a
// time, on a background goroutine. All methods are safe for concurrent use;
// control operations take effect between qubit steps, never during one.
//
// A Session exclusively owns its statistics and sifted key. Independent
// observers should each use their own Session.
type Session struct {
	src            photon.Source
	channel        *photon.Channel
	eve            *photon.Eavesdropper
	sink           Sink
	log            zerolog.Logger
	reportInterval int
	stepDelay      time.Duration
	initial        bloch.State

	mu      sync.Mutex
	status  Status
	eveCfg  photon.EveConfig
	qstate  bloch.State
	stats   Stats
	key     bitarray.Dense // receiver's sifted bits
	sent    bitarray.Dense // sender's bits at the same positions
	seq     int
	target  int
	summary *SessionSummary

	// gen identifies the current run; it changes on every Start and Reset so
	// that a superseded run loop exits at its next step boundary.
	gen  uint64
	wake chan struct{}
	done chan struct{}
}

// Start begins a run of n qubits and returns immediately. It fails with
// ErrInvalidConfiguration if n is not positive and ErrAlreadyRunning if a run
// is in progress. Starting from Stopped or Completed discards the previous
// run's results.
func (s *Session) Start(n int) error {
	if n <= 0 {
		return fmt.Errorf("starting run of %d qubits: %w", n, ErrInvalidConfiguration)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == Running {
		return fmt.Errorf("starting run of %d qubits: %w", n, ErrAlreadyRunning)
	}
	s.clear()
	s.status = Running
	s.target = n
	s.gen++
	s.wake = make(chan struct{})
	s.done = make(chan struct{})
	s.log.Debug().Int("qubits", n).Bool("eve", s.eveCfg.Active).Msg("run started")
	go s.loop(s.gen, s.wake, s.done)
	return nil
}

// Stop halts a run at the next step boundary, keeping everything accumulated
// so far. No further QubitEvents are emitted once Stop returns. It fails with
// ErrNotRunning outside of a run.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Running {
		return fmt.Errorf("stopping %s session: %w", s.status, ErrNotRunning)
	}
	s.status = Stopped
	sum := s.stats.Summary()
	s.summary = &sum
	close(s.wake)
	s.log.Info().Int("sent", s.stats.TotalSent).Int("of", s.target).Msg("run stopped")
	return nil
}

// Reset abandons any run, clears all session state, restores the initial
// quantum state and emits a ResetAck. The eavesdropper configuration is kept.
// It is valid in every state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == Running {
		close(s.wake)
	}
	s.gen++
	s.clear()
	s.status = Idle
	s.qstate = s.initial
	s.log.Info().Msg("session reset")
	s.sink.Emit(ResetAck{})
}

// Wait blocks until the current run, if any, has finished emitting events, or
// ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetQuantumState sets the displayed quantum state and returns it after
// normalisation: θ is clamped into [0, 180] and φ wrapped into [0, 360). While
// running, the next transmitted qubit replaces it.
func (s *Session) SetQuantumState(theta, phi float64) bloch.State {
	st := bloch.NewState(theta, phi)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qstate = st
	return st
}

// RotateQuantumState rotates the displayed quantum state by degrees about
// axis and returns the result.
func (s *Session) RotateQuantumState(axis bloch.Axis, degrees float64) bloch.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qstate = bloch.Rotate(s.qstate, axis, degrees)
	return s.qstate
}

// MeasureQuantumState measures the displayed quantum state in basis without
// collapsing it. The outcome is drawn from the session's source, so it
// shifts the draws of any later run.
func (s *Session) MeasureQuantumState(basis photon.Basis) photon.Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return photon.Measure(s.qstate, basis, s.src)
}

// SetEavesdropperConfig replaces the eavesdropper configuration, clamping its
// probabilities into [0, 1], and returns what was stored. It applies from the
// next qubit step on.
func (s *Session) SetEavesdropperConfig(cfg photon.EveConfig) photon.EveConfig {
	cfg = cfg.Clamp()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eveCfg = cfg
	s.log.Debug().
		Bool("active", cfg.Active).
		Float64("attack", cfg.AttackProbability).
		Float64("detection", cfg.DetectionThreshold).
		Msg("eavesdropper reconfigured")
	return cfg
}

// Status returns the session's lifecycle position.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Stats returns a copy of the running counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Target returns the qubit count of the current or last run.
func (s *Session) Target() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// SiftedKey returns a copy of the receiver's sifted key.
func (s *Session) SiftedKey() bitarray.Dense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key.Clone()
}

// Keys returns copies of the sender's and receiver's sifted keys. They differ
// exactly where a basis-matched qubit was received in error.
func (s *Session) Keys() (sender, receiver bitarray.Dense) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent.Clone(), s.key.Clone()
}

// EavesdropperConfig returns the current eavesdropper configuration.
func (s *Session) EavesdropperConfig() photon.EveConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eveCfg
}

// QuantumState returns the most recently set or transmitted quantum state.
func (s *Session) QuantumState() bloch.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qstate
}

// Summary returns the summary of a completed or stopped run.
func (s *Session) Summary() (SessionSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return SessionSummary{}, false
	}
	return *s.summary, true
}

func (s *Session) clear() {
	s.stats = Stats{}
	s.key = bitarray.Empty()
	s.sent = bitarray.Empty()
	s.seq = 0
	s.target = 0
	s.summary = nil
}

func (s *Session) loop(gen uint64, wake <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for s.step(gen) {
		if s.stepDelay <= 0 {
			continue
		}
		t := time.NewTimer(s.stepDelay)
		select {
		case <-t.C:
		case <-wake:
			t.Stop()
		}
	}
}

// step processes one qubit of run gen, reporting whether more remain.
func (s *Session) step(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.status != Running {
		return false
	}

	s.seq++
	bit := s.src.Bit()
	sendBasis := s.src.Basis()
	recvBasis := s.src.Basis()
	intercepted, detected := s.eve.Decide(s.eveCfg)
	tr := s.channel.Transmit(bit, sendBasis, recvBasis, intercepted)
	measured, vec := tr.Measured, tr.Received
	gain := tr.InformationGain(sendBasis)

	s.stats.TotalSent++
	if intercepted {
		s.stats.Intercepts++
		s.stats.EveInformation += gain
	}
	if detected {
		s.stats.Detections++
	}
	if sendBasis == recvBasis {
		s.stats.BasisMatches++
		if measured != bit {
			s.stats.BitErrors++
		}
		s.key.AppendBit(measured == 1)
		s.sent.AppendBit(bit == 1)
	}
	s.qstate = bloch.Angles(vec)

	s.sink.Emit(QubitEvent{
		Seq:           s.seq,
		Bit:           bit,
		SenderBasis:   sendBasis,
		ReceiverBasis: recvBasis,
		MeasuredBit:   measured,
		Intercepted:   intercepted,
		Detected:      detected,
		EveBasis:      tr.EveBasis,
		X:             vec.X,
		Y:             vec.Y,
		Z:             vec.Z,

		InformationGain: gain,
	})
	if s.stats.TotalSent%s.reportInterval == 0 {
		s.sink.Emit(s.stats.Snapshot())
	}

	if s.seq < s.target {
		return true
	}
	s.status = Completed
	sum := s.stats.Summary()
	s.summary = &sum
	s.sink.Emit(sum)
	s.log.Info().
		Int("sent", sum.TotalSent).
		Int("key_bits", sum.KeyLength).
		Float64("qber", sum.FinalQBER).
		Str("verdict", string(sum.Verdict)).
		Msg("run completed")
	return false
}
