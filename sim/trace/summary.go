package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	Announcements    int
	ThresholdChanges int
	MinThreshold     int
	MaxThreshold     int
	FinalThreshold   int
	// ChangesByState counts threshold changes per controller phase.
	ChangesByState map[string]int
	Associations   int
	Deassociations int
	// Flapping is the number of stations that lost an association at least once.
	Flapping int
	// Reached is the number of distinct stations that associated at least once.
	Reached int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		ChangesByState: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.Announcements = len(st.Announcements)
	summary.ThresholdChanges = len(st.Thresholds)
	if len(st.Thresholds) > 0 {
		summary.MinThreshold = st.Thresholds[0].New
		summary.MaxThreshold = st.Thresholds[0].New
		for _, r := range st.Thresholds {
			summary.ChangesByState[r.State]++
			summary.MinThreshold = min(summary.MinThreshold, r.New)
			summary.MaxThreshold = max(summary.MaxThreshold, r.New)
		}
		summary.FinalThreshold = st.Thresholds[len(st.Thresholds)-1].New
	}

	reached := make(map[string]bool)
	flapped := make(map[string]bool)
	for _, r := range st.Associations {
		if r.Associated {
			summary.Associations++
			reached[r.Station] = true
		} else {
			summary.Deassociations++
			flapped[r.Station] = true
		}
	}
	summary.Reached = len(reached)
	summary.Flapping = len(flapped)

	return summary
}
