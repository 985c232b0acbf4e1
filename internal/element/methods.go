package element

import (
	"sort"
	"time"

	"github.com/playforge/warehouse/internal/ports"
)

// Derivations over an analytic element's value history. Each is a pure
// function; the days* variants filter the history to entries within the
// template's window before reducing.

// mostCommon returns the value appearing most often. Ties resolve to the
// smallest value so the result does not depend on map iteration order.
func mostCommon(hist []ports.HistoryEntry) float64 {
	return commonest(hist, true)
}

// leastCommon returns the value appearing least often, smallest value on ties.
func leastCommon(hist []ports.HistoryEntry) float64 {
	return commonest(hist, false)
}

func commonest(hist []ports.HistoryEntry, most bool) float64 {
	if len(hist) == 0 {
		return 0
	}
	counts := map[float64]int{}
	for _, h := range hist {
		counts[h.Value]++
	}
	values := make([]float64, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Float64s(values)
	best := values[0]
	for _, v := range values[1:] {
		if most && counts[v] > counts[best] {
			best = v
		}
		if !most && counts[v] < counts[best] {
			best = v
		}
	}
	return best
}

// median returns the statistical median of the history values. The template
// method is named "mean" for historical reasons; the behavior has always been
// the median and callers depend on that.
func median(hist []ports.HistoryEntry) float64 {
	if len(hist) == 0 {
		return 0
	}
	vals := make([]float64, len(hist))
	for i, h := range hist {
		vals[i] = h.Value
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}

// windowed keeps entries whose timestamp falls within the last `days` days.
func windowed(hist []ports.HistoryEntry, days int, now time.Time) []ports.HistoryEntry {
	if days <= 0 {
		return hist
	}
	cutoff := now.AddDate(0, 0, -days)
	out := make([]ports.HistoryEntry, 0, len(hist))
	for _, h := range hist {
		if !h.At.Before(cutoff) {
			out = append(out, h)
		}
	}
	return out
}

func daysMedian(hist []ports.HistoryEntry, days int, now time.Time) float64 {
	return median(windowed(hist, days, now))
}

func daysCount(hist []ports.HistoryEntry, days int, now time.Time) float64 {
	return float64(len(windowed(hist, days, now)))
}

func daysSum(hist []ports.HistoryEntry, days int, now time.Time) float64 {
	var sum float64
	for _, h := range windowed(hist, days, now) {
		sum += h.Value
	}
	return sum
}

// meanRecency returns the mean gap in seconds between consecutive history
// entries, oldest first. Fewer than two entries yield zero.
func meanRecency(hist []ports.HistoryEntry) float64 {
	if len(hist) < 2 {
		return 0
	}
	sorted := make([]ports.HistoryEntry, len(hist))
	copy(sorted, hist)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })
	var total float64
	for i := 1; i < len(sorted); i++ {
		total += sorted[i].At.Sub(sorted[i-1].At).Seconds()
	}
	return total / float64(len(sorted)-1)
}

// derive computes the current value for an analytic array element.
func derive(method ports.AggregateMethod, windowDays int, hist []ports.HistoryEntry, now time.Time) float64 {
	switch method {
	case ports.MethodMost:
		return mostCommon(hist)
	case ports.MethodLeast:
		return leastCommon(hist)
	case ports.MethodMean:
		return median(hist)
	case ports.MethodDaysMean:
		return daysMedian(hist, windowDays, now)
	case ports.MethodDaysCount:
		return daysCount(hist, windowDays, now)
	case ports.MethodDaysSum:
		return daysSum(hist, windowDays, now)
	case ports.MethodRecency:
		return meanRecency(hist)
	}
	// Unknown methods fall back to the latest sample.
	if len(hist) > 0 {
		return hist[len(hist)-1].Value
	}
	return 0
}
