package ports

import "time"

// Timeframe is a recurring leaderboard window. Boundaries are aligned to
// integer multiples of the period from StartDate; day/week/month periods
// additionally snap to day boundaries.
type Timeframe struct {
	Key         string
	PeriodUnit  string // minute|hour|day|week|month
	PeriodCount int
	StartDate   time.Time
	TopLength   int
}

// Leaderboard configures one aggregate across players. AggregateElementID is
// the score source; AdditionalElementIDs are side columns refreshed from live
// element values on rollover.
type Leaderboard struct {
	ID                   string
	GameID               string
	Branch               string
	AggregateElementID   string
	AdditionalElementIDs []string
	Timeframes           []Timeframe
	// AlternativeCalculation leaderboards are served from a precomputed
	// snapshot instead of live durable rows.
	AlternativeCalculation bool
}

// Row is one player's durable score for a timeframe window.
type Row struct {
	Player       Player
	TimeframeKey string
	Score        float64
	Additional   map[string]float64
	UpdatedAt    time.Time
}

// TimeframeState records when a timeframe's window was last rebuilt.
type TimeframeState struct {
	GameID       string
	Env          string
	TimeframeKey string
	LastUpdate   time.Time
}
