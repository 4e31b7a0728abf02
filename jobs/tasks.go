package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCacheWarmup pre-populates the effective permission cache.
	TaskCacheWarmup = "warden:cache_warmup"
	// TaskCoherenceScan verifies cached sets against recomputed ones.
	TaskCoherenceScan = "warden:coherence_scan"
)

// CacheWarmupPayload tunes the warmup run.
type CacheWarmupPayload struct {
	Concurrency int `json:"concurrency"`
}

// CoherenceScanPayload tunes the scan run. When Repair is set, divergent
// entries are evicted so the next read recomputes them.
type CoherenceScanPayload struct {
	Repair bool `json:"repair"`
}

// NewCacheWarmupTask constructs an Asynq task.
func NewCacheWarmupTask(payload CacheWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheWarmup, data), nil
}

// NewCoherenceScanTask constructs an Asynq task.
func NewCoherenceScanTask(payload CoherenceScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCoherenceScan, data), nil
}
