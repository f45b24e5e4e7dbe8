package types

import "time"

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// RunLog is one orchestration pass over one target. It is created when the
// target starts and finalized when it ends.
type RunLog struct {
	ID         string        `json:"id" bson:"_id"`
	TargetID   string        `json:"target_id" bson:"target_id"`
	TargetName string        `json:"target_name" bson:"target_name"`
	Status     string        `json:"status" bson:"status"`
	Found      int           `json:"items_found" bson:"items_found"`
	New        int           `json:"items_new" bson:"items_new"`
	Error      string        `json:"error_message,omitempty" bson:"error_message,omitempty"`
	StartedAt  time.Time     `json:"started_at" bson:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
	Duration   time.Duration `json:"execution_time" bson:"execution_time"`
}

// TargetResult is the structured outcome for one target in a pass.
type TargetResult struct {
	Target   string        `json:"target"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Found    int           `json:"found"`
	New      int           `json:"new"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the target failed.
func (r TargetResult) Failed() bool { return r.Status == StatusFailed }

// RunSummary lists per-target outcomes for a pass.
type RunSummary struct {
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Results   []TargetResult `json:"results"`
}

// Found returns the total number of discovered candidates.
func (s *RunSummary) Found() int {
	n := 0
	for _, r := range s.Results {
		n += r.Found
	}
	return n
}

// New returns the total number of newly stored records.
func (s *RunSummary) New() int {
	n := 0
	for _, r := range s.Results {
		n += r.New
	}
	return n
}

// Failed returns the number of failed targets.
func (s *RunSummary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Failed() {
			n++
		}
	}
	return n
}
