package reporting

import (
	"time"

	"call-insights/internal/calls"
)

// TimeRange filters by call creation time. A zero bound is open.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type SummaryRequest struct {
	Range TimeRange `json:"range"`
	// TopN caps the category and tag rankings. Defaults to 10.
	TopN int `json:"topN"`
}

// LabelCount is one entry of a category or tag ranking.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Summary aggregates pipeline outcomes over the requested range.
type Summary struct {
	Range TimeRange `json:"range"`

	TotalCalls int                      `json:"totalCalls"`
	ByStatus   map[calls.CallStatus]int `json:"byStatus"`

	RecordedCalls    int `json:"recordedCalls"`
	TranscribedCalls int `json:"transcribedCalls"`
	AnalyzedCalls    int `json:"analyzedCalls"`

	// SuccessRate is complete / (complete + failed); 0 when nothing finished.
	SuccessRate float64 `json:"successRate"`

	TotalDurationSeconds   int `json:"totalDurationSeconds"`
	AverageDurationSeconds int `json:"averageDurationSeconds"`

	TopCategories []LabelCount `json:"topCategories"`
	TopTags       []LabelCount `json:"topTags"`
}
