// Package bus provides the durable job queue between the registry API and
// the ingest workers, backed by NATS JetStream. A pull consumer gives the
// worker long-poll dequeue with explicit acknowledgement; a message whose
// handler dies is redelivered after the configured ack-wait, which is the
// queue's visibility timeout.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultAckWait is how long a dequeued job stays invisible before the
// queue hands it to another worker. Ingest of a large repository can run
// for many minutes, so this errs long.
const DefaultAckWait = 30 * time.Minute

// Defaults for the ingest job queue. Every producer and consumer must agree
// on these, so they live here rather than in service config.
const (
	DefaultStream  = "INGEST"
	DefaultSubject = "ingest.jobs"
	DefaultDurable = "ingest-workers"
)

// Queue is a durable JetStream work queue bound to one stream subject.
type Queue struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	stream  string
	subject string
	durable string
	ackWait time.Duration

	mu  sync.Mutex
	sub *nats.Subscription
}

// Options configures a Queue.
type Options struct {
	Stream  string        // JetStream stream name
	Subject string        // subject jobs are published to
	Durable string        // durable consumer name shared by workers
	AckWait time.Duration // visibility timeout; DefaultAckWait when zero
}

// New connects to the NATS endpoint and ensures the stream exists.
func New(url string, opts Options, natsOpts ...nats.Option) (*Queue, error) {
	if opts.Stream == "" {
		opts.Stream = DefaultStream
	}
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	if opts.Durable == "" {
		opts.Durable = DefaultDurable
	}
	if opts.AckWait <= 0 {
		opts.AckWait = DefaultAckWait
	}

	nc, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	if _, err := js.StreamInfo(opts.Stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			nc.Close()
			return nil, err
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      opts.Stream,
			Subjects:  []string{opts.Subject},
			Retention: nats.WorkQueuePolicy,
		})
		if err != nil {
			nc.Close()
			return nil, err
		}
	}

	return &Queue{
		conn:    nc,
		js:      js,
		stream:  opts.Stream,
		subject: opts.Subject,
		durable: opts.Durable,
		ackWait: opts.AckWait,
	}, nil
}

// Close shuts down the underlying NATS connection.
func (q *Queue) Close() {
	if q == nil {
		return
	}
	if err := q.conn.Drain(); err != nil {
		q.conn.Close()
	}
}

// Enqueue encodes v as JSON and publishes it to the queue subject.
func (q *Queue) Enqueue(ctx context.Context, v any) error {
	if q == nil {
		return errors.New("bus: nil queue")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = q.js.Publish(q.subject, data, nats.Context(ctx))
	return err
}

// Delivery is one dequeued job. The holder must call exactly one of Ack or
// Nak; an unacknowledged delivery reappears after the queue's ack-wait.
type Delivery struct {
	msg *nats.Msg
}

// Decode unmarshals the job payload into dest.
func (d *Delivery) Decode(dest any) error {
	return json.Unmarshal(d.msg.Data, dest)
}

// Ack marks the job done; it will not be redelivered.
func (d *Delivery) Ack() error { return d.msg.Ack() }

// Nak returns the job to the queue for immediate redelivery.
func (d *Delivery) Nak() error { return d.msg.Nak() }

// Dequeue long-polls for the next job, waiting up to the context deadline
// (or wait, whichever is shorter). It returns (nil, nil) when the poll
// window elapses without a job.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*Delivery, error) {
	if q == nil {
		return nil, errors.New("bus: nil queue")
	}

	sub, err := q.pullSubscription()
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	msgs, err := sub.Fetch(1, nats.Context(fetchCtx))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &Delivery{msg: msgs[0]}, nil
}

func (q *Queue) pullSubscription() (*nats.Subscription, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sub != nil {
		return q.sub, nil
	}

	sub, err := q.js.PullSubscribe(q.subject, q.durable,
		nats.AckWait(q.ackWait),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.BindStream(q.stream),
	)
	if err != nil {
		return nil, err
	}
	q.sub = sub
	return sub, nil
}
