package scheduler

import (
	"context"
	"time"
)

// Job is one recurring unit of work (signal run, history top-up, compliance refresh)
// ⭐ SSOT: the scheduled job interface is defined here only
type Job interface {
	Name() string

	// Run executes one pass. It must return promptly once ctx is cancelled.
	Run(ctx context.Context) error

	// Schedule returns the cron expression, seconds first.
	// Examples: "0 30 16 * * MON-FRI", "@weekly"
	Schedule() string
}

// JobResult is the outcome of one triggered run, retries included
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// historyLimit bounds the results kept per job
const historyLimit = 100

// JobHistory keeps the most recent results of one job, oldest first
type JobHistory struct {
	Results []JobResult
}

// AddResult appends r and drops the oldest entry past historyLimit
func (h *JobHistory) AddResult(r JobResult) {
	if len(h.Results) == historyLimit {
		copy(h.Results, h.Results[1:])
		h.Results[len(h.Results)-1] = r
		return
	}
	h.Results = append(h.Results, r)
}

// Latest returns the most recent result
func (h *JobHistory) Latest() (JobResult, bool) {
	if len(h.Results) == 0 {
		return JobResult{}, false
	}
	return h.Results[len(h.Results)-1], true
}

// FailureStreak counts failed runs since the last success
func (h *JobHistory) FailureStreak() int {
	n := 0
	for i := len(h.Results) - 1; i >= 0 && !h.Results[i].Success; i-- {
		n++
	}
	return n
}

// stats folds the history into JobStats (name, schedule and next run are filled by the caller)
func (h *JobHistory) stats() JobStats {
	st := JobStats{TotalRuns: len(h.Results), FailureStreak: h.FailureStreak()}
	for _, r := range h.Results {
		started := r.StartTime
		if r.Success {
			st.SuccessCount++
			st.LastSuccess = &started
		} else {
			st.FailureCount++
			st.LastFailure = &started
			st.LastError = r.Error
		}
	}
	if last, ok := h.Latest(); ok {
		st.LastRun = &last.StartTime
		st.LastDuration = last.Duration.String()
	}
	if st.TotalRuns > 0 {
		st.SuccessRate = float64(st.SuccessCount) / float64(st.TotalRuns)
	}
	return st
}

// JobStats summarises a job for `quant scheduler list` and /api/scheduler/jobs
type JobStats struct {
	JobName       string     `json:"job_name"`
	Schedule      string     `json:"schedule"`
	TotalRuns     int        `json:"total_runs"`
	SuccessCount  int        `json:"success_count"`
	FailureCount  int        `json:"failure_count"`
	FailureStreak int        `json:"failure_streak"`
	SuccessRate   float64    `json:"success_rate"`
	LastRun       *time.Time `json:"last_run,omitempty"`
	LastDuration  string     `json:"last_duration,omitempty"`
	LastSuccess   *time.Time `json:"last_success,omitempty"`
	LastFailure   *time.Time `json:"last_failure,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	NextRun       *time.Time `json:"next_run,omitempty"`
	Running       bool       `json:"running"`
}
