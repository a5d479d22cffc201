package bb84

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qkdlab/bb84sim/bb84/bloch"
	"github.com/qkdlab/bb84sim/bb84/photon"
)

func seeded(seed int64) photon.Source {
	return photon.NewSource(rand.New(rand.NewSource(seed)))
}

func newTestSession(t *testing.T, opts SessionOpts) (*Session, *Collector) {
	t.Helper()
	c := &Collector{}
	if opts.Source == nil {
		opts.Source = seeded(84)
	}
	opts.Sink = MultiSink(c, opts.Sink)
	s, err := NewSession(opts)
	require.NoError(t, err)
	return s, c
}

// firstQubit returns a sink which signals once the first qubit is emitted.
func firstQubit() (Sink, <-chan struct{}) {
	ch := make(chan struct{}, 1)
	return SinkFunc(func(e Event) {
		if _, ok := e.(QubitEvent); ok {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}), ch
}

func runToCompletion(t *testing.T, s *Session, n int) {
	t.Helper()
	require.NoError(t, s.Start(n))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	require.Equal(t, Completed, s.Status())
}

func TestNewSessionValidation(t *testing.T) {
	tcs := []struct {
		name string
		opts SessionOpts
	}{
		{name: "no source", opts: SessionOpts{}},
		{name: "negative interval", opts: SessionOpts{Source: seeded(1), ReportInterval: -1}},
		{name: "negative delay", opts: SessionOpts{Source: seeded(1), StepDelay: -time.Second}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSession(tc.opts)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}
}

func TestNewSessionDefaults(t *testing.T) {
	s, err := NewSession(SessionOpts{
		Source: seeded(1),
		Eve:    photon.EveConfig{Active: true, AttackProbability: 3, DetectionThreshold: -1},
	})
	require.NoError(t, err)
	assert.Equal(t, Idle, s.Status())
	assert.Equal(t, DefaultQuantumState, s.QuantumState())
	assert.Equal(t, photon.EveConfig{Active: true, AttackProbability: 1, DetectionThreshold: 0}, s.EavesdropperConfig())
	_, ok := s.Summary()
	assert.False(t, ok)
}

func TestIdealChannel(t *testing.T) {
	s, c := newTestSession(t, SessionOpts{})
	runToCompletion(t, s, 1000)

	st := s.Stats()
	assert.Equal(t, 1000, st.TotalSent)
	assert.Zero(t, st.BitErrors)
	assert.Zero(t, st.Intercepts)
	assert.Zero(t, st.QBER())

	sum, ok := s.Summary()
	require.True(t, ok)
	assert.Equal(t, Secure, sum.Verdict)
	assert.InDelta(t, 500, sum.KeyLength, 70)
	assert.Equal(t, sum.KeyLength, s.SiftedKey().Size())
	assert.InDelta(t, float64(sum.KeyLength)/1000, sum.Efficiency, 1e-12)

	for _, q := range c.Qubits() {
		if q.Sifted() {
			assert.Equal(t, q.Bit, q.MeasuredBit, "qubit %d", q.Seq)
		}
	}
}

func TestFullInterceptResend(t *testing.T) {
	s, _ := newTestSession(t, SessionOpts{
		Eve: photon.EveConfig{Active: true, AttackProbability: 1, DetectionThreshold: 0.5},
	})
	runToCompletion(t, s, 1000)

	st := s.Stats()
	assert.Equal(t, 1000, st.Intercepts)
	assert.InDelta(t, 500, st.Detections, 80)
	assert.InDelta(t, 0.25, st.QBER(), 0.07)
	assert.Equal(t, Compromised, st.Verdict())
	assert.InDelta(t, 0.75, st.EveInformationGain(), 0.04)

	sum, ok := s.Summary()
	require.True(t, ok)
	assert.Equal(t, st.EveInformationGain(), sum.EveInformationGain)
}

func TestRunsAreReproducible(t *testing.T) {
	eve := photon.EveConfig{Active: true, AttackProbability: 0.3, DetectionThreshold: 0.5}
	a, ac := newTestSession(t, SessionOpts{Source: seeded(7), Eve: eve})
	b, bc := newTestSession(t, SessionOpts{Source: seeded(7), Eve: eve})
	runToCompletion(t, a, 200)
	runToCompletion(t, b, 200)
	assert.Equal(t, ac.Events(), bc.Events())
	assert.Equal(t, a.SiftedKey().String(), b.SiftedKey().String())
}

func TestEventOrdering(t *testing.T) {
	s, c := newTestSession(t, SessionOpts{ReportInterval: 10})
	runToCompletion(t, s, 95)

	events := c.Events()
	seq, snapshots, summaries := 0, 0, 0
	for i, e := range events {
		switch e := e.(type) {
		case QubitEvent:
			seq++
			assert.Equal(t, seq, e.Seq)
		case StatsSnapshot:
			snapshots++
			assert.Equal(t, seq, e.TotalSent)
			assert.Zero(t, e.TotalSent%10)
		case SessionSummary:
			summaries++
			assert.Equal(t, len(events)-1, i, "summary must be the last event")
			assert.Equal(t, 95, e.TotalSent)
		default:
			t.Errorf("unexpected event %#v", e)
		}
	}
	assert.Equal(t, 95, seq)
	assert.Equal(t, 9, snapshots)
	assert.Equal(t, 1, summaries)
}

func TestSiftedKeysDifferExactlyAtErrors(t *testing.T) {
	s, c := newTestSession(t, SessionOpts{
		Eve: photon.EveConfig{Active: true, AttackProbability: 0.5},
	})
	runToCompletion(t, s, 600)

	st := s.Stats()
	sender, receiver := s.Keys()
	require.Equal(t, st.BasisMatches, sender.Size())
	require.Equal(t, st.BasisMatches, receiver.Size())
	assert.Equal(t, st.BitErrors, sender.XOr(receiver).CountOnes())
	assert.LessOrEqual(t, st.Detections, st.Intercepts)
	assert.LessOrEqual(t, st.Intercepts, st.TotalSent)

	idx := 0
	for _, q := range c.Qubits() {
		if !q.Sifted() {
			continue
		}
		assert.Equal(t, q.MeasuredBit == 1, receiver.Get(idx))
		assert.Equal(t, q.Bit == 1, sender.Get(idx))
		idx++
	}
}

func TestQubitEventCarriesReceivedState(t *testing.T) {
	s, c := newTestSession(t, SessionOpts{})
	runToCompletion(t, s, 50)
	for _, q := range c.Qubits() {
		want := photon.Encode(q.Bit, q.SenderBasis).Vector()
		assert.InDelta(t, want.X, q.X, 1e-9)
		assert.InDelta(t, want.Y, q.Y, 1e-9)
		assert.InDelta(t, want.Z, q.Z, 1e-9)
	}
	qs := c.Qubits()
	last := qs[len(qs)-1]
	want := photon.Encode(last.Bit, last.SenderBasis)
	assert.InDelta(t, want.Theta, s.QuantumState().Theta, 1e-6)
	assert.InDelta(t, want.Phi, s.QuantumState().Phi, 1e-6)
}

func TestStopMidRun(t *testing.T) {
	sink, first := firstQubit()
	s, c := newTestSession(t, SessionOpts{Sink: sink, StepDelay: time.Hour})
	require.NoError(t, s.Start(100))
	<-first

	require.NoError(t, s.Stop())
	assert.Equal(t, Stopped, s.Status())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))

	assert.Len(t, c.Qubits(), 1)
	assert.Equal(t, 1, s.Stats().TotalSent)
	sum, ok := s.Summary()
	require.True(t, ok)
	assert.Equal(t, 1, sum.TotalSent)
	for _, e := range c.Events() {
		assert.NotEqual(t, KindSummary, e.Kind(), "stopped runs emit no summary")
	}
}

func TestLifecycleErrors(t *testing.T) {
	s, _ := newTestSession(t, SessionOpts{StepDelay: time.Hour})

	assert.ErrorIs(t, s.Start(0), ErrInvalidConfiguration)
	assert.ErrorIs(t, s.Start(-5), ErrInvalidConfiguration)
	assert.ErrorIs(t, s.Stop(), ErrNotRunning)

	require.NoError(t, s.Start(10))
	assert.ErrorIs(t, s.Start(10), ErrAlreadyRunning)
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrNotRunning)
}

func TestRestartDiscardsPreviousRun(t *testing.T) {
	s, _ := newTestSession(t, SessionOpts{})
	runToCompletion(t, s, 100)
	runToCompletion(t, s, 30)
	assert.Equal(t, 30, s.Stats().TotalSent)
	assert.Equal(t, 30, s.Target())
}

func TestReset(t *testing.T) {
	eve := photon.EveConfig{Active: true, AttackProbability: 0.4, DetectionThreshold: 0.2}
	tcs := []struct {
		name  string
		setup func(t *testing.T, s *Session, first <-chan struct{})
	}{
		{
			name:  "idle",
			setup: func(t *testing.T, s *Session, first <-chan struct{}) {},
		},
		{
			name: "running",
			setup: func(t *testing.T, s *Session, first <-chan struct{}) {
				require.NoError(t, s.Start(100))
				<-first
			},
		},
		{
			name: "stopped",
			setup: func(t *testing.T, s *Session, first <-chan struct{}) {
				require.NoError(t, s.Start(100))
				<-first
				require.NoError(t, s.Stop())
			},
		},
		{
			name: "completed",
			setup: func(t *testing.T, s *Session, first <-chan struct{}) {
				require.NoError(t, s.Start(1))
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				require.NoError(t, s.Wait(ctx))
				require.Equal(t, Completed, s.Status())
			},
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			sink, first := firstQubit()
			s, c := newTestSession(t, SessionOpts{Sink: sink, StepDelay: time.Hour, Eve: eve})
			tc.setup(t, s, first)
			s.SetQuantumState(10, 20)

			s.Reset()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			require.NoError(t, s.Wait(ctx))

			assert.Equal(t, Idle, s.Status())
			assert.Equal(t, Stats{}, s.Stats())
			assert.Zero(t, s.SiftedKey().Size())
			assert.Zero(t, s.Target())
			assert.Equal(t, DefaultQuantumState, s.QuantumState())
			assert.Equal(t, eve, s.EavesdropperConfig())
			_, ok := s.Summary()
			assert.False(t, ok)

			events := c.Events()
			require.NotEmpty(t, events)
			assert.Equal(t, ResetAck{}, events[len(events)-1])

			// The session is reusable afterwards.
			require.NoError(t, s.Start(5))
			require.NoError(t, s.Stop())
		})
	}
}

func TestSetQuantumState(t *testing.T) {
	s, _ := newTestSession(t, SessionOpts{})
	tcs := []struct {
		theta, phi float64
		want       bloch.State
	}{
		{theta: 45, phi: 30, want: bloch.State{Theta: 45, Phi: 30}},
		{theta: -10, phi: 370, want: bloch.State{Theta: 0, Phi: 10}},
		{theta: 200, phi: -90, want: bloch.State{Theta: 180, Phi: 270}},
	}
	for _, tc := range tcs {
		got := s.SetQuantumState(tc.theta, tc.phi)
		assert.InDelta(t, tc.want.Theta, got.Theta, 1e-9)
		assert.InDelta(t, tc.want.Phi, got.Phi, 1e-9)
		assert.Equal(t, got, s.QuantumState())
	}
}

func TestRotateAndMeasureQuantumState(t *testing.T) {
	s, _ := newTestSession(t, SessionOpts{})
	s.SetQuantumState(0, 0)

	got := s.RotateQuantumState(bloch.YAxis, 90)
	assert.Equal(t, got, s.QuantumState())
	assert.Equal(t, bloch.Plus, bloch.Label(got.Vector()))

	m := s.MeasureQuantumState(photon.Diagonal)
	assert.InDelta(t, 1, m.P0, 1e-9)
	assert.Equal(t, photon.Bit(0), m.Result)
	assert.Equal(t, got, s.QuantumState(), "measuring does not collapse the display")

	m = s.MeasureQuantumState(photon.Rectilinear)
	assert.InDelta(t, 0.5, m.P0, 1e-9)
}

func TestSetEavesdropperConfig(t *testing.T) {
	s, _ := newTestSession(t, SessionOpts{})
	got := s.SetEavesdropperConfig(photon.EveConfig{Active: true, AttackProbability: 1.5, DetectionThreshold: -0.2})
	want := photon.EveConfig{Active: true, AttackProbability: 1, DetectionThreshold: 0}
	assert.Equal(t, want, got)
	assert.Equal(t, want, s.EavesdropperConfig())
}

func TestReconfigureWhileRunning(t *testing.T) {
	const n, k = 30, 10
	reached := make(chan struct{}, 1)
	sink := SinkFunc(func(e Event) {
		if q, ok := e.(QubitEvent); ok && q.Seq == k {
			reached <- struct{}{}
		}
	})
	s, c := newTestSession(t, SessionOpts{Sink: sink, StepDelay: 20 * time.Millisecond})
	require.NoError(t, s.Start(n))

	<-reached
	s.SetEavesdropperConfig(photon.EveConfig{Active: true, AttackProbability: 1})
	set := s.SetQuantumState(45, 30)
	assert.Equal(t, set, s.QuantumState())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	require.Equal(t, Completed, s.Status())

	qs := c.Qubits()
	require.Len(t, qs, n)
	for _, q := range qs {
		assert.Equal(t, q.Seq > k, q.Intercepted, "qubit %d", q.Seq)
	}
	assert.Equal(t, n-k, s.Stats().Intercepts)

	// Later qubits replaced the state set mid-run.
	last := qs[n-1]
	got := s.QuantumState().Vector()
	assert.InDelta(t, last.X, got.X, 1e-6)
	assert.InDelta(t, last.Y, got.Y, 1e-6)
	assert.InDelta(t, last.Z, got.Z, 1e-6)
}

func TestVerdictFor(t *testing.T) {
	tcs := []struct {
		qber float64
		want Verdict
	}{
		{0, Secure},
		{0.04, Secure},
		{0.05, Warning},
		{0.08, Warning},
		{0.11, Warning},
		{0.12, Compromised},
		{0.5, Compromised},
	}
	for _, tc := range tcs {
		assert.Equal(t, tc.want, VerdictFor(tc.qber), "qber %v", tc.qber)
	}
}

func TestStatsRatios(t *testing.T) {
	var zero Stats
	assert.Zero(t, zero.QBER())
	assert.Zero(t, zero.Efficiency())

	st := Stats{TotalSent: 40, BasisMatches: 20, BitErrors: 5}
	assert.InDelta(t, 0.25, st.QBER(), 1e-12)
	assert.InDelta(t, 0.5, st.Efficiency(), 1e-12)
	assert.Equal(t, 20, st.Summary().KeyLength)

	assert.Zero(t, zero.EveInformationGain())
	st = Stats{Intercepts: 4, EveInformation: 3}
	assert.InDelta(t, 0.75, st.EveInformationGain(), 1e-12)
}

func TestMultiSink(t *testing.T) {
	a, b := &Collector{}, &Collector{}
	m := MultiSink(a, nil, b)
	m.Emit(ResetAck{})
	m.Emit(StatsSnapshot{TotalSent: 3})
	want := []Event{ResetAck{}, StatsSnapshot{TotalSent: 3}}
	assert.Equal(t, want, a.Events())
	assert.Equal(t, want, b.Events())
}
