// Package taskqueue encodes stage messages onto the durable queue.
package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/pkg/logx"
	"github.com/Mutter0815/LaunchPro/pkg/metrics"
	"github.com/Mutter0815/LaunchPro/pkg/rmq"
)

type publisher interface {
	PublishJSONWithHeaders(ctx context.Context, body []byte, headers amqp.Table) error
	PublishDelayed(ctx context.Context, body []byte, headers amqp.Table, delay time.Duration) error
}

type Queue struct {
	pub publisher
	now func() time.Time
}

func New(pub publisher) *Queue {
	return &Queue{pub: pub, now: time.Now}
}

// Enqueue schedules msg to become visible after delay. A fresh message
// starts with zero delivery retries.
func (q *Queue) Enqueue(ctx context.Context, msg campaign.TaskMessage, delay time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	headers := amqp.Table{
		rmq.HeaderRetries:     int32(0),
		rmq.HeaderScheduledAt: q.now().Add(delay).UTC().Format(time.RFC3339Nano),
	}
	if delay > 0 {
		err = q.pub.PublishDelayed(ctx, body, headers, delay)
	} else {
		err = q.pub.PublishJSONWithHeaders(ctx, body, headers)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Stage, err)
	}
	metrics.TasksPublished.WithLabelValues(string(msg.Stage)).Inc()
	logx.Campaign(msg.CampaignID).Debugw("task_enqueued", "stage", msg.Stage, "attempt", msg.Attempt, "delay", delay.String())
	return nil
}

// Decode turns a raw delivery into a campaign.Delivery.
func Decode(body []byte, headers amqp.Table, published time.Time) (campaign.Delivery, error) {
	var msg campaign.TaskMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return campaign.Delivery{}, fmt.Errorf("decode task: %w", err)
	}
	if msg.CampaignID == "" {
		return campaign.Delivery{}, fmt.Errorf("decode task: %w: missing campaign_id", campaign.ErrInvalidRequest)
	}
	if _, ok := campaign.ParseStage(string(msg.Stage)); !ok {
		return campaign.Delivery{}, fmt.Errorf("decode task: %w: %q", campaign.ErrUnknownStage, msg.Stage)
	}
	return campaign.Delivery{
		Message:     msg,
		RetryCount:  rmq.RetryCount(headers),
		ScheduledAt: rmq.ScheduledAt(headers, published),
	}, nil
}
