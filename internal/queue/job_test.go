package queue

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

type samplePayload struct {
	Channel string `json:"channel"`
	Ts      string `json:"ts"`
}

func TestNewJob(t *testing.T) {
	t.Parallel()

	job, err := NewJob(JobTypeCaptureReaction, samplePayload{Channel: "C1", Ts: "1.0"})
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	if job.ID == uuid.Nil {
		t.Error("Expected job ID to be set")
	}
	if job.Type != JobTypeCaptureReaction {
		t.Errorf("Expected job type to be %s, got %s", JobTypeCaptureReaction, job.Type)
	}
	if job.CreatedAt.IsZero() {
		t.Error("Expected created_at to be set")
	}

	var got samplePayload
	if err := job.DecodePayload(&got); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if got.Channel != "C1" || got.Ts != "1.0" {
		t.Errorf("DecodePayload() = %+v", got)
	}
}

func TestNewJob_UnencodablePayload(t *testing.T) {
	t.Parallel()

	if _, err := NewJob(JobTypeCaptureReaction, make(chan int)); err == nil {
		t.Error("Expected error for unencodable payload")
	}
}

func TestJob_DecodePayload_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload json.RawMessage
	}{
		{name: "missing payload", payload: nil},
		{name: "wrong shape", payload: json.RawMessage(`"a string"`)},
		{name: "invalid json", payload: json.RawMessage(`{`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			job := &Job{ID: uuid.New(), Type: JobTypeCaptureModalSubmission, Payload: tt.payload}
			var v samplePayload
			if err := job.DecodePayload(&v); err == nil {
				t.Error("Expected decode error")
			}
		})
	}
}

func TestJobType_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		jobType JobType
		want    bool
	}{
		{JobTypeCaptureReaction, true},
		{JobTypeCaptureModalSubmission, true},
		{"task_analysis", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.jobType.IsValid(); got != tt.want {
			t.Errorf("%q.IsValid() = %v, want %v", tt.jobType, got, tt.want)
		}
	}
}
