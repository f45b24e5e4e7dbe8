package engine

import (
	"sync/atomic"
	"time"
)

// Stats tracks orchestration counters across passes.
type Stats struct {
	Passes          atomic.Int64
	Targets         atomic.Int64
	TargetsFailed   atomic.Int64
	PagesFetched    atomic.Int64
	FetchErrors     atomic.Int64
	Candidates      atomic.Int64
	CandidatesSeen  atomic.Int64
	Extracted       atomic.Int64
	Rejected        atomic.Int64
	Duplicates      atomic.Int64
	Stored          atomic.Int64
	Disallowed      atomic.Int64
	Errors          atomic.Int64
	BytesDownloaded atomic.Int64
	StartTime       time.Time
}

// NewStats returns zeroed counters starting now.
func NewStats() *Stats {
	return &Stats{StartTime: time.Now()}
}

// Snapshot returns a copy of the counters safe for reading.
func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"passes":           s.Passes.Load(),
		"targets":          s.Targets.Load(),
		"targets_failed":   s.TargetsFailed.Load(),
		"pages_fetched":    s.PagesFetched.Load(),
		"fetch_errors":     s.FetchErrors.Load(),
		"candidates":       s.Candidates.Load(),
		"candidates_seen":  s.CandidatesSeen.Load(),
		"extracted":        s.Extracted.Load(),
		"rejected":         s.Rejected.Load(),
		"duplicates":       s.Duplicates.Load(),
		"stored":           s.Stored.Load(),
		"disallowed":       s.Disallowed.Load(),
		"errors":           s.Errors.Load(),
		"bytes_downloaded": s.BytesDownloaded.Load(),
		"uptime_seconds":   int64(time.Since(s.StartTime).Seconds()),
	}
}
