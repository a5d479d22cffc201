// Package bb84 simulates the BB84 quantum key distribution protocol one qubit
// at a time, streaming what happens to each qubit, together with running
// error statistics, to an observer.
package bb84

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/qkdlab/bb84sim/bb84/bloch"
	"github.com/qkdlab/bb84sim/bb84/photon"
)

var (
	DefaultReportInterval = 1
	DefaultQuantumState   = bloch.State{Theta: 90, Phi: 90}
)

// Errors reported synchronously by Session operations. Returned errors wrap
// these, so test for them with errors.Is.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrAlreadyRunning       = errors.New("session already running")
	ErrNotRunning           = errors.New("session not running")
)

// A SessionOpts packages together the arguments necessary to construct a new
// Session. Source must be set; every other field has a usable zero value.
type SessionOpts struct {
	// Source provides every random draw made by the session, its channel and
	// its eavesdropper. Seed it for reproducible runs. Must be non-nil.
	Source photon.Source

	// Sink receives the session's events, in order. Sinks are called with the
	// session locked and must not call back into it. Defaults to Discard.
	Sink Sink

	// Log receives lifecycle logging. Defaults to a no-op logger.
	Log *zerolog.Logger

	// ReportInterval is the number of qubits between StatsSnapshot events.
	// Defaults to DefaultReportInterval.
	ReportInterval int

	// StepDelay paces the run for human observers. It is advisory and is cut
	// short by Stop and Reset. Defaults to no delay.
	StepDelay time.Duration

	// Eve is the initial eavesdropper configuration. It is clamped.
	Eve photon.EveConfig

	// State is the quantum state shown while idle, and restored by Reset.
	// Defaults to DefaultQuantumState.
	State *bloch.State
}

// NewSession returns a new, idle Session configured in accordance with opts,
// or an error if the options are nonsensical.
func NewSession(opts SessionOpts) (*Session, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("must provide Source: %w", ErrInvalidConfiguration)
	}
	if opts.ReportInterval < 0 {
		return nil, fmt.Errorf("negative report interval %d: %w", opts.ReportInterval, ErrInvalidConfiguration)
	}
	if opts.StepDelay < 0 {
		return nil, fmt.Errorf("negative step delay %v: %w", opts.StepDelay, ErrInvalidConfiguration)
	}
	interval := opts.ReportInterval
	if interval == 0 {
		interval = DefaultReportInterval
	}
	sink := opts.Sink
	if sink == nil {
		sink = Discard
	}
	log := zerolog.Nop()
	if opts.Log != nil {
		log = opts.Log.With().Str("component", "session").Logger()
	}
	initial := DefaultQuantumState
	if opts.State != nil {
		initial = bloch.NewState(opts.State.Theta, opts.State.Phi)
	}

	return &Session{
		src:            opts.Source,
		channel:        photon.NewSimulatedChannel(opts.Source),
		eve:            photon.NewEavesdropper(opts.Source),
		sink:           sink,
		log:            log,
		reportInterval: interval,
		stepDelay:      opts.StepDelay,
		initial:        initial,
		eveCfg:         opts.Eve.Clamp(),
		qstate:         initial,
	}, nil
}
