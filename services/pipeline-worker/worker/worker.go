package worker

import (
	"context"
	"errors"
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/pipeline"
	"github.com/Mutter0815/LaunchPro/internal/taskqueue"
	"github.com/Mutter0815/LaunchPro/pkg/logx"
	"github.com/Mutter0815/LaunchPro/pkg/metrics"
	"github.com/Mutter0815/LaunchPro/pkg/rmq"
)

type handler interface {
	Handle(ctx context.Context, del campaign.Delivery) (pipeline.Result, error)
	MaxRetries() int
}

type consumer interface {
	Consume() (<-chan amqp.Delivery, error)
}

type publisher interface {
	PublishDelayed(ctx context.Context, body []byte, headers amqp.Table, delay time.Duration) error
}

type Worker struct {
	Handler handler
	Cons    consumer
	Pub     publisher
	// Concurrency caps deliveries handled at once.
	Concurrency int
	// InFlightDelay is the redelivery delay used while another invocation
	// holds a platform launch.
	InFlightDelay time.Duration
	Queue         string
}

func New(h handler, cons consumer, pub publisher, concurrency int, inFlightDelay time.Duration) *Worker {
	return &Worker{Handler: h, Cons: cons, Pub: pub, Concurrency: concurrency, InFlightDelay: inFlightDelay}
}

// Run consumes until ctx is done or the channel closes, then waits for the
// deliveries still being handled.
func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.Cons.Consume()
	if err != nil {
		return err
	}
	logx.L().Infow("worker_started", "queue", w.Queue, "concurrency", w.Concurrency)

	var g errgroup.Group
	if w.Concurrency > 0 {
		g.SetLimit(w.Concurrency)
	}
	defer func() { _ = g.Wait() }()

	for {
		select {
		case <-ctx.Done():
			logx.L().Infow("worker_stopping")
			return ctx.Err()

		case d, ok := <-msgs:
			if !ok {
				logx.L().Warnw("consumer_channel_closed")
				return nil
			}
			g.Go(func() error {
				w.handle(ctx, d)
				return nil
			})
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	metrics.WorkerDeliveries.Inc()

	del, err := taskqueue.Decode(d.Body, d.Headers, d.Timestamp)
	if err != nil {
		logx.L().Warnw("task_unmarshal_error", "error", err)
		_ = d.Ack(false)
		return
	}
	msg := del.Message
	log := logx.Campaign(msg.CampaignID).With("stage", msg.Stage, "attempt", msg.Attempt, "retries", del.RetryCount)

	res, err := w.Handler.Handle(ctx, del)
	if err == nil {
		log.Infow("task_done", "outcome", res.Outcome, "status", res.Status)
		_ = d.Ack(false)
		return
	}

	if ctx.Err() != nil {
		// Shutting down: hand the delivery back untouched.
		log.Infow("task_interrupted", "error", err)
		_ = d.Nack(false, true)
		return
	}
	if errors.Is(err, campaign.ErrUnknownStage) || del.RetryCount >= w.Handler.MaxRetries() {
		metrics.WorkerDeliveriesAbandoned.Inc()
		log.Errorw("drop_after_retries", "error", err)
		_ = d.Ack(false)
		return
	}

	delay := backoffDelay(del.RetryCount + 1)
	if errors.Is(err, pipeline.ErrLaunchInFlight) && w.InFlightDelay > delay {
		delay = w.InFlightDelay
	}
	metrics.WorkerDeliveryRetries.Inc()
	log.Infow("retry_requeue", "next_retry", del.RetryCount+1, "delay", delay.String(), "error", err)
	if err := w.requeueMessage(ctx, d, del.RetryCount+1, delay); err != nil {
		log.Errorw("retry_publish_error", "error", err)
		_ = d.Nack(false, true)
	}
}

// requeueMessage republishes d with the retry header bumped. The delay is
// served by a broker-side delay queue, not by holding the delivery.
func (w *Worker) requeueMessage(ctx context.Context, d amqp.Delivery, retries int, delay time.Duration) error {
	headers := copyHeaders(d.Headers)
	setHeaderRetries(&headers, retries)

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.Pub.PublishDelayed(pubCtx, d.Body, headers, delay); err != nil {
		return err
	}
	return d.Ack(false)
}

func setHeaderRetries(h *amqp.Table, n int) {
	if *h == nil {
		*h = amqp.Table{}
	}
	(*h)[rmq.HeaderRetries] = int32(n)
}

func backoffDelay(retries int) time.Duration {
	if retries <= 0 {
		return 0
	}
	sec := math.Pow(2, float64(retries-1))
	return time.Duration(sec) * time.Second
}

func copyHeaders(h amqp.Table) amqp.Table {
	if h == nil {
		return amqp.Table{}
	}
	dup := make(amqp.Table, len(h))
	for k, v := range h {
		dup[k] = v
	}
	return dup
}
