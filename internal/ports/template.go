package ports

// TemplateKind separates bounded statistics from unbounded analytics.
type TemplateKind string

const (
	TemplateStatistic TemplateKind = "statistic"
	TemplateAnalytic  TemplateKind = "analytic"
)

// AggregateMethod selects how an analytic element's current value is derived
// from its history when mutated in array mode.
type AggregateMethod string

const (
	MethodMost      AggregateMethod = "most"      // most common history value
	MethodLeast     AggregateMethod = "least"     // least common history value
	MethodMean      AggregateMethod = "mean"      // median of history (legacy name kept)
	MethodDaysMean  AggregateMethod = "daysmean"  // median over the last N days
	MethodDaysCount AggregateMethod = "dayscount" // sample count over the last N days
	MethodDaysSum   AggregateMethod = "dayssum"   // sum over the last N days
	MethodRecency   AggregateMethod = "recency"   // mean seconds between samples
)

// Template is a designer-configured element definition: type, default,
// optional numeric range for statistics, and aggregation method for analytic
// array elements.
type Template struct {
	ID         string
	Kind       TemplateKind
	ValueKind  ValueKind
	Default    Value
	RangeMin   *float64
	RangeMax   *float64
	Method     AggregateMethod
	WindowDays int // for the days* methods
}

// InRange reports whether v satisfies the template's optional [min,max] bounds.
func (t *Template) InRange(v float64) bool {
	if t.RangeMin != nil && v < *t.RangeMin {
		return false
	}
	if t.RangeMax != nil && v > *t.RangeMax {
		return false
	}
	return true
}
