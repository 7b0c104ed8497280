package engine

import (
	"encoding/json"
	"fmt"
	"io"
)

// Summary holds run-level counters.
type Summary struct {
	Arrivals   int `json:"arrivals"`
	Admitted   int `json:"admitted"`
	Blocked    int `json:"blocked"`
	Protected  int `json:"protected"`
	Shared     int `json:"shared_backups"`
	Departures int `json:"departures"`
	Removed    int `json:"removed"`
	// BackupsLost counts leases dissolved because the lender departed.
	BackupsLost int `json:"backups_lost"`

	OfferedBandwidth float64 `json:"offered_bandwidth"`
	BlockedBandwidth float64 `json:"blocked_bandwidth"`
	WorkingHops      int64   `json:"working_hops"`

	ActiveCalls  int     `json:"active_calls"`
	Utilization  float64 `json:"utilization"`
	SimEndedTime int64   `json:"sim_ended_time"`
}

// BlockingProbability is blocked arrivals over arrivals.
func (s *Summary) BlockingProbability() float64 {
	if s.Arrivals == 0 {
		return 0
	}
	return float64(s.Blocked) / float64(s.Arrivals)
}

// BandwidthBlockingRatio is blocked bandwidth over offered bandwidth.
func (s *Summary) BandwidthBlockingRatio() float64 {
	if s.OfferedBandwidth == 0 {
		return 0
	}
	return s.BlockedBandwidth / s.OfferedBandwidth
}

// MeanWorkingHops is the average working path length of admitted calls.
func (s *Summary) MeanWorkingHops() float64 {
	if s.Admitted == 0 {
		return 0
	}
	return float64(s.WorkingHops) / float64(s.Admitted)
}

// Print writes the summary as indented JSON under a header.
func (s *Summary) Print(w io.Writer) error {
	out := struct {
		*Summary
		BlockingProbability    float64 `json:"blocking_probability"`
		BandwidthBlockingRatio float64 `json:"bandwidth_blocking_ratio"`
		MeanWorkingHops        float64 `json:"mean_working_hops"`
	}{s, s.BlockingProbability(), s.BandwidthBlockingRatio(), s.MeanWorkingHops()}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	_, err = fmt.Fprintf(w, "=== Simulation Summary ===\n%s\n", data)
	return err
}
