package database

import "time"

// FeedbackRecord is one submitted piece of feedback with the causes
// extracted from its analysis.
type FeedbackRecord struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Feedback   string    `json:"feedback"`
	MainCauses []string  `json:"main_causes"`
}

// CauseCount is one entry of the cause frequency table.
type CauseCount struct {
	Cause string `json:"cause"`
	Count int    `json:"count"`
}

// Stats contains aggregate store statistics.
type Stats struct {
	TotalFeedback    int `json:"total_feedback"`
	UniqueCauses     int `json:"unique_causes"`
	TotalOccurrences int `json:"total_occurrences"`
}
