package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every admission and departure decision.
	TraceLevelDecisions TraceLevel = "decisions"
	// TraceLevelPaths additionally captures the chosen working and backup edges.
	TraceLevelPaths TraceLevel = "paths"
)

// IsValidTraceLevel reports whether level names a trace level. Empty means
// none.
func IsValidTraceLevel(level string) bool {
	switch TraceLevel(level) {
	case "", TraceLevelNone, TraceLevelDecisions, TraceLevelPaths:
		return true
	}
	return false
}

// Enabled reports whether the level records anything.
func (l TraceLevel) Enabled() bool {
	return l != TraceLevelNone && l != ""
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects decision records during a simulation. It is
// written out as JSON by the CLI.
type SimulationTrace struct {
	Level      TraceLevel        `json:"level"`
	Admissions []AdmissionRecord `json:"admissions"`
	Departures []DepartureRecord `json:"departures"`
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{Level: config.Level}
}

// RecordAdmission appends an arrival decision. Paths are kept only at
// TraceLevelPaths.
func (st *SimulationTrace) RecordAdmission(record AdmissionRecord) {
	if st.Level != TraceLevelPaths {
		record.Working, record.Backup = nil, nil
	}
	st.Admissions = append(st.Admissions, record)
}

// RecordDeparture appends a departure record.
func (st *SimulationTrace) RecordDeparture(record DepartureRecord) {
	st.Departures = append(st.Departures, record)
}

// Admission returns the arrival decision recorded for callID.
func (st *SimulationTrace) Admission(callID string) (AdmissionRecord, bool) {
	for _, a := range st.Admissions {
		if a.CallID == callID {
			return a, true
		}
	}
	return AdmissionRecord{}, false
}
