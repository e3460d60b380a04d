package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/model"
)

const (
	// StreamName is the name of the inbound message job stream.
	StreamName = "INBOUND_MESSAGES"

	// SubjectPrefix is the prefix for inbound job subjects.
	SubjectPrefix = "inbound"

	// ConsumerName is the durable consumer shared by worker processes.
	ConsumerName = "pipeline-workers"
)

// JobQueue manages the durable inbound-job stream.
type JobQueue struct {
	client *Client
}

// NewJobQueue creates a job queue over an established client.
func NewJobQueue(client *Client) *JobQueue {
	return &JobQueue{client: client}
}

// EnsureStream ensures the inbound job stream exists.
func (q *JobQueue) EnsureStream(ctx context.Context) error {
	js := q.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Inbound customer messages awaiting pipeline processing",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// JobSubject returns the subject for a session's inbound jobs.
func JobSubject(sessionID string) string {
	return fmt.Sprintf("%s.msg.%s", SubjectPrefix, sessionID)
}

// Enqueue publishes an inbound job to the durable queue.
func (q *JobQueue) Enqueue(ctx context.Context, job *model.InboundJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if _, err := q.client.JetStream().Publish(ctx, JobSubject(job.SessionID), data); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// JobHandler processes one dequeued job. A returned error causes the job
// to be redelivered by the queue up to its MaxDeliver limit.
type JobHandler func(ctx context.Context, job *model.InboundJob) error

// Consume pulls jobs and hands them to the handler until the context is
// cancelled. Malformed payloads are terminated rather than redelivered.
func (q *JobQueue) Consume(ctx context.Context, handler JobHandler) error {
	js := q.client.JetStream()

	consumer, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
		MaxDeliver:    5,
		MaxAckPending: 64,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var job model.InboundJob
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			q.client.logger.Error("dropping malformed job", zap.Error(err))
			_ = msg.Term()
			return
		}

		if err := handler(ctx, &job); err != nil {
			q.client.logger.Warn("job failed, leaving for redelivery",
				zap.String("session_id", job.SessionID),
				zap.Error(err),
			)
			_ = msg.Nak()
			return
		}

		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	return nil
}
