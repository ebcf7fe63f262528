package jobqueue

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/EnkiSilicium/artisan-hub/internal/model"
)

// PublishJob is one unit of asynchronous publication work: the committed
// event payloads plus the outbox row ids to delete after a confirmed send.
// The job carries the payloads so the worker does not have to re-read the
// outbox table on every attempt.
type PublishJob struct {
	Events    []model.OutboxMessage `json:"events"`
	OutboxIDs []uuid.UUID           `json:"outbox_ids"`
	Attempt   int                   `json:"attempt"`
}

// NewPublishJob builds a job from a committed outbox batch.
func NewPublishJob(msgs []*model.OutboxMessage) *PublishJob {
	job := &PublishJob{
		Events:    make([]model.OutboxMessage, 0, len(msgs)),
		OutboxIDs: make([]uuid.UUID, 0, len(msgs)),
	}
	for _, msg := range msgs {
		job.Events = append(job.Events, *msg)
		job.OutboxIDs = append(job.OutboxIDs, msg.ID)
	}
	return job
}

// Messages returns the job's events as outbox messages for dispatch.
func (j *PublishJob) Messages() []*model.OutboxMessage {
	out := make([]*model.OutboxMessage, len(j.Events))
	for i := range j.Events {
		out[i] = &j.Events[i]
	}
	return out
}

func (j *PublishJob) marshal() ([]byte, error) {
	return json.Marshal(j)
}

func unmarshalJob(raw []byte) (*PublishJob, error) {
	var job PublishJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
