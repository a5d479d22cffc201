package bb84

// A Verdict grades a session's security from its QBER.
type Verdict string

const (
	Secure      Verdict = "SECURE"
	Warning     Verdict = "WARNING"
	Compromised Verdict = "COMPROMISED"
)

// QBER thresholds separating the verdicts. A QBER equal to either threshold
// is a Warning.
const (
	WarningQBER     = 0.05
	CompromisedQBER = 0.11
)

// VerdictFor grades qber: below WarningQBER is Secure, above CompromisedQBER
// is Compromised, anything in between is a Warning.
func VerdictFor(qber float64) Verdict {
	switch {
	case qber < WarningQBER:
		return Secure
	case qber <= CompromisedQBER:
		return Warning
	default:
		return Compromised
	}
}

// Stats packages together the running counters of one session.
type Stats struct {
	TotalSent    int `json:"totalSent"`
	Intercepts   int `json:"intercepts"`
	Detections   int `json:"detections"`
	BasisMatches int `json:"basisMatches"`

	// BitErrors counts basis-matched qubits the receiver measured wrongly.
	BitErrors int `json:"bitErrors"`

	// EveInformation sums the eavesdropper's per-intercept information gain.
	EveInformation float64 `json:"eveInformation"`
}

// QBER returns the fraction of basis-matched qubits received in error, or 0
// if no bases have matched yet.
func (s Stats) QBER() float64 {
	if s.BasisMatches == 0 {
		return 0
	}
	return float64(s.BitErrors) / float64(s.BasisMatches)
}

// Verdict grades the current QBER.
func (s Stats) Verdict() Verdict {
	return VerdictFor(s.QBER())
}

// EveInformationGain returns the eavesdropper's average information gain per
// intercepted qubit, in [0.5, 1], or 0 if nothing was intercepted.
func (s Stats) EveInformationGain() float64 {
	if s.Intercepts == 0 {
		return 0
	}
	return s.EveInformation / float64(s.Intercepts)
}

// Efficiency returns the sifted key length as a fraction of qubits sent.
func (s Stats) Efficiency() float64 {
	if s.TotalSent == 0 {
		return 0
	}
	return float64(s.BasisMatches) / float64(s.TotalSent)
}

// Snapshot returns the StatsSnapshot event describing s.
func (s Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TotalSent:   s.TotalSent,
		Intercepts:  s.Intercepts,
		Detections:  s.Detections,
		RunningQBER: s.QBER(),

		EveInformationGain: s.EveInformationGain(),
	}
}

// Summary returns the SessionSummary event describing s. The sifted key holds
// exactly one bit per basis match, so its length is BasisMatches.
func (s Stats) Summary() SessionSummary {
	return SessionSummary{
		TotalSent:  s.TotalSent,
		Intercepts: s.Intercepts,
		Detections: s.Detections,
		FinalQBER:  s.QBER(),
		Verdict:    s.Verdict(),
		KeyLength:  s.BasisMatches,
		Efficiency: s.Efficiency(),

		EveInformationGain: s.EveInformationGain(),
	}
}
