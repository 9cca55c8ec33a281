package notify

import "github.com/google/uuid"

// Job is a queued webhook dispatch, consumed by the worker.
type Job struct {
	JobID   string  `json:"job_id"`
	Payload Payload `json:"payload"`
}

func NewJob(p Payload) Job {
	return Job{JobID: uuid.NewString(), Payload: p}
}
