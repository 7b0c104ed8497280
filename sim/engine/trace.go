package engine

import (
	"github.com/survnet/survsim/sim"
	"github.com/survnet/survsim/sim/topology"
	"github.com/survnet/survsim/sim/trace"
)

// TraceCollector records every decision into st.
func TraceCollector(st *trace.SimulationTrace) Collector {
	return CollectorFunc(func(res Result, view View) {
		ev := res.Event
		switch ev.Type {
		case sim.EventTypeArrival:
			rec := trace.AdmissionRecord{
				CallID:    ev.Call.ID,
				Clock:     ev.Timestamp,
				Security:  string(ev.Call.Security),
				Bandwidth: ev.Call.Bandwidth,
				Admitted:  res.OK,
			}
			if out := res.Outcome; out != nil {
				rec.Reason = out.Reason
				rec.Protected = len(out.Backup) > 0
				rec.Working = edgeStrings(out.Working)
				rec.Backup = edgeStrings(out.Backup)
				rec.Lender = out.Lender
			}
			st.RecordAdmission(rec)
		case sim.EventTypeDeparture:
			st.RecordDeparture(trace.DepartureRecord{
				CallID:   ev.Call.ID,
				Clock:    ev.Timestamp,
				Removed:  res.OK,
				Orphaned: res.Orphaned,
			})
		}
	})
}

func edgeStrings(p topology.Path) []string {
	if len(p) == 0 {
		return nil
	}
	out := make([]string, len(p))
	for i, k := range p {
		out[i] = k.String()
	}
	return out
}
