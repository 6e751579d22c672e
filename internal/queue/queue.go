package queue

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

// JobQueue carries job ids from the API to the dispatch worker.
const JobQueue = "campaign_jobs"

// Publisher is the slice of the queue the service layer needs.
type Publisher interface {
	PublishJob(jobID string) error
}

type jobMessage struct {
	JobID string `json:"job_id"`
}

type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	Log  zerolog.Logger
}

func Dial(url string, log zerolog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	_, err = ch.QueueDeclare(
		JobQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, ch: ch, Log: log}, nil
}

func (q *AMQPQueue) Close() {
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *AMQPQueue) PublishJob(jobID string) error {
	body, err := json.Marshal(jobMessage{JobID: jobID})
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",
		JobQueue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// ConsumeJobs feeds queued job ids to the handler until ctx is done. A
// failing delivery is requeued once; reruns of terminal jobs are no-ops, so
// one redelivery is enough.
func (q *AMQPQueue) ConsumeJobs(ctx context.Context, handler func(jobID string) error) error {
	msgs, err := q.ch.Consume(
		JobQueue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			var msg jobMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				q.Log.Warn().Err(err).Msg("dropping malformed job message")
				d.Ack(false)
				continue
			}
			if err := handler(msg.JobID); err != nil {
				if !d.Redelivered {
					q.Log.Warn().Str("job_id", msg.JobID).Err(err).Msg("job failed, requeueing once")
					d.Nack(false, true)
					continue
				}
				q.Log.Error().Str("job_id", msg.JobID).Err(err).Msg("job failed after redelivery")
			}
			d.Ack(false)
		}
	}
}

var _ Publisher = (*AMQPQueue)(nil)
