package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeCaptureReaction captures a message after a trigger reaction
	JobTypeCaptureReaction JobType = "capture_reaction"
	// JobTypeCaptureModalSubmission captures a message submitted through the shortcut modal
	JobTypeCaptureModalSubmission JobType = "capture_modal_submission"
)

// IsValid reports whether t is a known job type
func (t JobType) IsValid() bool {
	switch t {
	case JobTypeCaptureReaction, JobTypeCaptureModalSubmission:
		return true
	default:
		return false
	}
}

// Job is one unit of detached capture work
type Job struct {
	ID        uuid.UUID       `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	// Trace carries the W3C trace context of the request that scheduled the job
	Trace map[string]string `json:"trace,omitempty"`
}

// NewJob creates a job carrying payload encoded as JSON
func NewJob(jobType JobType, payload any) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", jobType, err)
	}
	return &Job{
		ID:        uuid.New(),
		Type:      jobType,
		Payload:   raw,
		CreatedAt: time.Now(),
	}, nil
}

// DecodePayload unmarshals the job payload into v
func (j *Job) DecodePayload(v any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("job %s has no payload", j.ID)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", j.Type, err)
	}
	return nil
}
