// Package trace provides decision-trace recording for call provisioning runs.
// This package has no dependencies on sim/ or its sub-packages; it stores pure data types.
package trace

// AdmissionRecord captures the allocator's decision for one arriving call.
type AdmissionRecord struct {
	CallID    string   `json:"call_id"`
	Clock     int64    `json:"clock"`
	Security  string   `json:"security"`
	Bandwidth float64  `json:"bandwidth"`
	Admitted  bool     `json:"admitted"`
	Reason    string   `json:"reason"`
	Protected bool     `json:"protected"`
	Working   []string `json:"working,omitempty"` // edge keys, TraceLevelPaths only
	Backup    []string `json:"backup,omitempty"`  // edge keys, TraceLevelPaths only
	Lender    string   `json:"lender,omitempty"`  // owner of a leased backup
}

// DepartureRecord captures one departure. Removed is false for calls that
// were blocked on arrival. Orphaned is the borrower left without a backup
// when a lender departs.
type DepartureRecord struct {
	CallID   string `json:"call_id"`
	Clock    int64  `json:"clock"`
	Removed  bool   `json:"removed"`
	Orphaned string `json:"orphaned,omitempty"`
}
