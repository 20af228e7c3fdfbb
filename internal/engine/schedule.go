package engine

import (
	"time"

	"github.com/RoiLaboratories/Tower-Exchange/internal/types"
)

// NextExecutionTime computes an order's next due instant. Advancement
// is always from the processing instant, not from the previous
// scheduled time: a backlog makes the schedule catch up to roughly
// real time instead of firing compressed back-to-back cycles.
func NextExecutionTime(frequency string, from time.Time) time.Time {
	switch frequency {
	case types.FrequencyHourly:
		return from.Add(time.Hour)
	case types.FrequencyDaily:
		return from.AddDate(0, 0, 1)
	case types.FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case types.FrequencyBiWeekly:
		return from.AddDate(0, 0, 14)
	case types.FrequencyMonthly:
		return from.AddDate(0, 1, 0)
	default:
		// Unrecognized frequencies fall back to weekly.
		return from.AddDate(0, 0, 7)
	}
}

// ValidFrequency reports whether the token is a recognized cadence.
func ValidFrequency(frequency string) bool {
	switch frequency {
	case types.FrequencyHourly, types.FrequencyDaily, types.FrequencyWeekly,
		types.FrequencyBiWeekly, types.FrequencyMonthly:
		return true
	}
	return false
}
