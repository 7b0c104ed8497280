package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDecisions      int
	AdmittedCount       int
	BlockedCount        int
	ProtectedCount      int // admitted with a backup, leased or owned
	LeasedCount         int
	BlockingProbability float64
	Removed             int
	NoOpDepartures      int
	BackupsLost         int            // borrowers left unprotected by a lender's departure
	ReasonDistribution  map[string]int // reason → count of decisions
	SecurityBlocked     map[string]int // security level → blocked calls
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		ReasonDistribution: make(map[string]int),
		SecurityBlocked:    make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalDecisions = len(st.Admissions)
	for _, a := range st.Admissions {
		summary.ReasonDistribution[a.Reason]++
		if !a.Admitted {
			summary.BlockedCount++
			summary.SecurityBlocked[a.Security]++
			continue
		}
		summary.AdmittedCount++
		if a.Protected {
			summary.ProtectedCount++
		}
		if a.Lender != "" {
			summary.LeasedCount++
		}
	}
	if summary.TotalDecisions > 0 {
		summary.BlockingProbability = float64(summary.BlockedCount) / float64(summary.TotalDecisions)
	}

	for _, d := range st.Departures {
		if d.Removed {
			summary.Removed++
		} else {
			summary.NoOpDepartures++
		}
		if d.Orphaned != "" {
			summary.BackupsLost++
		}
	}
	return summary
}
