package models

import "time"

// ExecutionStatDay holds execution counts for a single day.
type ExecutionStatDay struct {
	Day       time.Time `json:"day" db:"day"`
	Completed int       `json:"completed" db:"completed"`
	Failed    int       `json:"failed" db:"failed"`
	Running   int       `json:"running" db:"running"`
}

// ExecutionStat is the aggregated dashboard view over a period.
type ExecutionStat struct {
	Total       int                `json:"total"`
	Completed   int                `json:"completed"`
	Failed      int                `json:"failed"`
	Running     int                `json:"running"`
	SuccessRate float64            `json:"success_rate"` // completed/total
	TotalJobs   int                `json:"total_jobs"`
	PerDay      []ExecutionStatDay `json:"per_day"`
}
