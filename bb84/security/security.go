// Package security grades the health of a BB84 link from the QBER it has
// observed over time.
package security

import (
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/qkdlab/bb84sim/bb84"
)

const (
	DefaultThreshold = 0.11
	DefaultWindow    = 100

	// scoreCeiling is the QBER at which the security score reaches zero.
	scoreCeiling = 0.20
	// peakKeyRate is the estimated key rate of a perfect channel, in bits/s.
	peakKeyRate = 1000
)

// A ThreatLevel buckets a QBER into how likely an eavesdropper is.
type ThreatLevel string

const (
	Low      ThreatLevel = "LOW"
	Medium   ThreatLevel = "MEDIUM"
	High     ThreatLevel = "HIGH"
	Critical ThreatLevel = "CRITICAL"
)

// LevelFor buckets qber: [0, 0.05) Low, [0.05, 0.11) Medium, [0.11, 0.20)
// High, everything else Critical.
func LevelFor(qber float64) ThreatLevel {
	switch {
	case qber < 0.05:
		return Low
	case qber < 0.11:
		return Medium
	case qber < 0.20:
		return High
	default:
		return Critical
	}
}

// A Health summarises link quality for operators.
type Health string

const (
	Optimal  Health = "OPTIMAL"
	Marginal Health = "MARGINAL"
	Degraded Health = "DEGRADED"
	Failing  Health = "CRITICAL"
)

// HealthFor grades qber. Each boundary belongs to the better grade.
func HealthFor(qber float64) Health {
	switch {
	case qber > 0.15:
		return Failing
	case qber > 0.08:
		return Degraded
	case qber > 0.03:
		return Marginal
	default:
		return Optimal
	}
}

// Recommend returns the operator advice for qber.
func Recommend(qber float64) string {
	switch {
	case qber < 0.02:
		return "Secure - Continue normal operation"
	case qber < 0.05:
		return "Monitor - Slightly elevated error rate"
	case qber < 0.11:
		return "Caution - Approaching detection threshold"
	default:
		return "Alert - Potential eavesdropper detected! Abort key exchange"
	}
}

// Score maps qber onto [0, 1], 1 being a perfect channel.
func Score(qber float64) float64 {
	return math.Max(0, 1-qber/scoreCeiling)
}

// KeyRate estimates the secret key rate in bits/s. Above 11% QBER no secret
// key can be distilled.
func KeyRate(qber float64) int {
	if qber > bb84.CompromisedQBER {
		return 0
	}
	return int(math.Max(0, 1-2*qber) * peakKeyRate)
}

// Statistics describes the observations a Monitor holds.
type Statistics struct {
	UptimeSeconds int `json:"uptimeSeconds"`
	Observations  int `json:"observations"`
	Qubits        int `json:"sessionQubits"`
	Intercepts    int `json:"sessionIntercepts"`
	Detections    int `json:"sessionDetections"`

	AverageQBER float64 `json:"averageQber"`
	StdDevQBER  float64 `json:"qberStandardDeviation"`
	// Trend is the regression slope of the history scaled by its length and
	// clamped into [-1, 1]; positive means errors are rising.
	Trend float64 `json:"qberTrend"`

	// DetectionEfficiency is the fraction of intercepts that were flagged.
	DetectionEfficiency float64 `json:"detectionEfficiency"`
}

// An Assessment lists what drives the current threat level.
type Assessment struct {
	OverallRisk ThreatLevel `json:"overallRisk"`
	RiskFactors []string    `json:"riskFactors"`
	// Confidence grows with the number of qubits seen, up to 100.
	Confidence  float64 `json:"confidenceLevel"`
	DataQuality string  `json:"dataQuality"`
}

// A Report is a point-in-time security analysis.
type Report struct {
	Timestamp            time.Time   `json:"timestamp"`
	QBER                 float64     `json:"qber"`
	ThreatLevel          ThreatLevel `json:"threatLevel"`
	SecurityScore        float64     `json:"securityScore"`
	Efficiency           float64     `json:"efficiency"`
	KeyRate              int         `json:"estimatedKeyRate"`
	DetectionConfidence  float64     `json:"detectionConfidence"`
	EavesdropperDetected bool        `json:"eavesdropperDetected"`
	Recommendation       string      `json:"recommendation"`
	Statistics           Statistics  `json:"statistics"`
	Assessment           Assessment  `json:"threatAssessment"`
	Mitigations          []string    `json:"mitigationStrategies"`
	Health               Health      `json:"systemHealth"`

	// InformationGain is the eavesdropper's average information gain per
	// intercepted qubit at the latest snapshot: 0.75 for a full
	// intercept-resend attack with random bases.
	InformationGain float64 `json:"estimatedInformationGain"`
}

// MonitorOpts configures a Monitor. Zero values select the defaults.
type MonitorOpts struct {
	// Threshold is the QBER above which an eavesdropper is reported.
	Threshold float64
	// Window bounds the QBER history.
	Window int
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// A Monitor accumulates QBER observations and session counters and turns
// them into Reports. It is a bb84.Sink, so it can be attached to a session
// directly. It is safe for concurrent use.
type Monitor struct {
	threshold float64
	window    int
	now       func() time.Time

	mu         sync.Mutex
	history    []float64
	started    time.Time
	qubits     int
	intercepts int
	detections int
	gain       float64
}

// NewMonitor returns a Monitor configured by opts.
func NewMonitor(opts MonitorOpts) (*Monitor, error) {
	if opts.Threshold < 0 || opts.Threshold > 1 || math.IsNaN(opts.Threshold) {
		return nil, fmt.Errorf("threshold %v outside [0, 1]: %w", opts.Threshold, bb84.ErrInvalidConfiguration)
	}
	if opts.Window < 0 {
		return nil, fmt.Errorf("negative window %d: %w", opts.Window, bb84.ErrInvalidConfiguration)
	}
	m := &Monitor{
		threshold: opts.Threshold,
		window:    opts.Window,
		now:       opts.Now,
	}
	if m.threshold == 0 {
		m.threshold = DefaultThreshold
	}
	if m.window == 0 {
		m.window = DefaultWindow
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.started = m.now()
	return m, nil
}

// Observe records one QBER measurement, evicting the oldest once the window
// is full.
func (m *Monitor) Observe(qber float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(qber)
}

func (m *Monitor) observe(qber float64) {
	if len(m.history) == m.window {
		copy(m.history, m.history[1:])
		m.history = m.history[:m.window-1]
	}
	m.history = append(m.history, qber)
}

// Emit implements bb84.Sink: snapshots feed the history and session counters,
// and a reset clears everything.
func (m *Monitor) Emit(e bb84.Event) {
	switch e := e.(type) {
	case bb84.StatsSnapshot:
		m.mu.Lock()
		defer m.mu.Unlock()
		m.observe(e.RunningQBER)
		m.qubits = e.TotalSent
		m.intercepts = e.Intercepts
		m.detections = e.Detections
		m.gain = e.EveInformationGain
	case bb84.ResetAck:
		m.Reset()
	}
}

// Reset clears the history and counters and restarts the uptime clock.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
	m.qubits, m.intercepts, m.detections = 0, 0, 0
	m.gain = 0
	m.started = m.now()
}

// History returns a copy of the QBER history, oldest first.
func (m *Monitor) History() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.history...)
}

// Report analyses the most recent observation, or a QBER of 0 if there is
// none.
func (m *Monitor) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	var qber float64
	if n := len(m.history); n > 0 {
		qber = m.history[n-1]
	}
	st := m.statistics(qber)
	r := Report{
		Timestamp:            m.now(),
		QBER:                 qber,
		ThreatLevel:          LevelFor(qber),
		SecurityScore:        Score(qber),
		Efficiency:           math.Max(0, 1-2*qber),
		KeyRate:              KeyRate(qber),
		DetectionConfidence:  math.Min(1, qber/m.threshold),
		EavesdropperDetected: qber > m.threshold,
		Recommendation:       Recommend(qber),
		Statistics:           st,
		Assessment:           m.assess(qber, st),
		Health:               HealthFor(qber),
		InformationGain:      m.gain,
	}
	r.Mitigations = mitigations(r)
	return r
}

func (m *Monitor) statistics(qber float64) Statistics {
	st := Statistics{
		UptimeSeconds: int(m.now().Sub(m.started).Seconds()),
		Observations:  len(m.history),
		Qubits:        m.qubits,
		Intercepts:    m.intercepts,
		Detections:    m.detections,
		AverageQBER:   qber,
	}
	if m.intercepts > 0 {
		st.DetectionEfficiency = float64(m.detections) / float64(m.intercepts)
	}
	if len(m.history) < 2 {
		return st
	}
	mean, variance := stat.PopMeanVariance(m.history, nil)
	st.AverageQBER = mean
	st.StdDevQBER = math.Sqrt(variance)
	st.Trend = trend(m.history)
	return st
}

// trend fits a line through ys against their index and scales the slope by
// the sample count.
func trend(ys []float64) float64 {
	n := len(ys)
	if n < 2 {
		return 0
	}
	xs := floats.Span(make([]float64, n), 0, float64(n-1))
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(slope) {
		return 0
	}
	return math.Max(-1, math.Min(1, slope*float64(n)))
}

func (m *Monitor) assess(qber float64, st Statistics) Assessment {
	a := Assessment{
		OverallRisk: LevelFor(qber),
		RiskFactors: []string{},
		Confidence:  math.Min(100, float64(st.Qubits)/10),
	}
	if qber > 0.05 {
		a.RiskFactors = append(a.RiskFactors, "Elevated error rate detected")
	}
	if st.Trend > 0.5 {
		a.RiskFactors = append(a.RiskFactors, "Increasing error trend")
	}
	if float64(st.Intercepts) > float64(st.Qubits)*0.1 {
		a.RiskFactors = append(a.RiskFactors, "High interception rate")
	}
	switch {
	case st.Qubits > 50:
		a.DataQuality = "High"
	case st.Qubits > 20:
		a.DataQuality = "Medium"
	default:
		a.DataQuality = "Low"
	}
	return a
}

func mitigations(r Report) []string {
	switch {
	case r.EavesdropperDetected:
		return []string{
			"Immediately halt key distribution",
			"Increase qubit transmission rate",
			"Implement quantum error correction",
			"Switch to backup quantum channel",
		}
	case r.QBER > 0.05:
		return []string{
			"Monitor channel continuously",
			"Increase basis randomization",
			"Implement privacy amplification",
		}
	}
	return []string{"Continue normal operation with regular monitoring"}
}
