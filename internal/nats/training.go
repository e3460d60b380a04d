package nats

import (
	"github.com/nats-io/nats.go"
)

// ReindexSubject carries training-source reindex requests from the API
// to whichever worker picks them up first.
const ReindexSubject = "training.reindex"

// RequestReindex asks the workers to rebuild a training source's chunks.
// Best-effort core NATS; a lost request is re-issued by the operator.
func (q *JobQueue) RequestReindex(sourceID string) error {
	return q.client.Conn().Publish(ReindexSubject, []byte(sourceID))
}

// OnReindex registers a queue-group handler for reindex requests so only
// one worker processes each request.
func (q *JobQueue) OnReindex(handler func(sourceID string)) (*nats.Subscription, error) {
	return q.client.Conn().QueueSubscribe(ReindexSubject, "pipeline-indexers", func(msg *nats.Msg) {
		handler(string(msg.Data))
	})
}
