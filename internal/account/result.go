package account

import (
	"time"
)

// BatchResult is the aggregate written at the end of a run.
type BatchResult struct {
	Environment        Environment `json:"environment"`
	CreatedAt          string      `json:"created_at"`
	TotalAccounts      int         `json:"total_accounts"`
	SuccessfulAccounts int         `json:"successful_accounts"`
	FailedAccounts     int         `json:"failed_accounts"`
	Accounts           []Snapshot  `json:"accounts"`
}

// NewBatchResult counts the snapshots and stamps the result with createdAt.
func NewBatchResult(env Environment, createdAt time.Time, accounts []Snapshot) BatchResult {
	r := BatchResult{
		Environment:   env,
		CreatedAt:     createdAt.Format(time.RFC3339),
		TotalAccounts: len(accounts),
		Accounts:      accounts,
	}
	if r.Accounts == nil {
		r.Accounts = []Snapshot{}
	}
	for _, s := range accounts {
		switch {
		case s.Status.IsCompleted():
			r.SuccessfulAccounts++
		case s.Status.IsFailed():
			r.FailedAccounts++
		}
	}
	return r
}

// Statistics summarizes a set of attempts.
type Statistics struct {
	Total       int            `json:"total"`
	Success     int            `json:"success"`
	Failed      int            `json:"failed"`
	Pending     int            `json:"pending"`
	SuccessRate float64        `json:"success_rate"`
	Environment Environment    `json:"environment"`
	ByStatus    map[Status]int `json:"by_status"`
}

// ComputeStatistics derives Statistics from snapshots. SuccessRate is a
// percentage in [0,100].
func ComputeStatistics(env Environment, accounts []Snapshot) Statistics {
	stats := Statistics{
		Total:       len(accounts),
		Environment: env,
		ByStatus:    make(map[Status]int),
	}
	for _, s := range accounts {
		stats.ByStatus[s.Status]++
		switch {
		case s.Status.IsCompleted():
			stats.Success++
		case s.Status.IsFailed():
			stats.Failed++
		default:
			stats.Pending++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Success) / float64(stats.Total) * 100
	}
	return stats
}

// Grade buckets a success rate for summaries.
type Grade string

const (
	GradePerfect Grade = "perfect"
	GradeSuccess Grade = "success"
	GradePartial Grade = "partial"
	GradeFailed  Grade = "failed"
)

// Grade returns the summary bucket of the success rate.
func (s Statistics) Grade() Grade {
	switch {
	case s.Total > 0 && s.Success == s.Total:
		return GradePerfect
	case s.SuccessRate >= 80:
		return GradeSuccess
	case s.SuccessRate >= 50:
		return GradePartial
	}
	return GradeFailed
}
