package model

import "time"

// RunSummary aggregates test outcomes. Passed is implicit.
type RunSummary struct {
	Total   int
	Failed  int
	Skipped int
	NotRun  int
	Time    time.Duration
}

// Passed returns the number of tests that neither failed, skipped nor were
// left unrun.
func (s RunSummary) Passed() int {
	return s.Total - s.Failed - s.Skipped - s.NotRun
}

// Add accumulates other into s.
func (s *RunSummary) Add(other RunSummary) {
	s.Total += other.Total
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	s.NotRun += other.NotRun
	s.Time += other.Time
}
