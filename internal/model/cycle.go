package model

import "time"

// CycleStats summarizes one monitoring cycle.
type CycleStats struct {
	CycleID         string     `json:"cycle_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	URLsChecked     int        `json:"urls_checked"`
	ChangesDetected int        `json:"changes_detected"`
	StealthAlerts   int        `json:"stealth_alerts"`
	Errors          int        `json:"errors"`
	RowsLogged      int        `json:"rows_logged"`
	RowsFailed      int        `json:"rows_failed"`
	FirstRun        bool       `json:"first_run"`
	DurationSeconds float64    `json:"duration_seconds"`
}

// URLSchedule is the per-URL scheduling state.
type URLSchedule struct {
	URL           string     `json:"url"`
	CheckInterval int        `json:"check_interval"` // seconds
	Type          string     `json:"type"`
	Priority      string     `json:"priority"`
	LastChecked   *time.Time `json:"last_checked,omitempty"`
	NextCheck     *time.Time `json:"next_check,omitempty"`
}
