package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mutter0815/LaunchPro/internal/audit"
	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/pkg/logx"
	"github.com/Mutter0815/LaunchPro/pkg/metrics"
)

const abandonedMessage = "delivery retries exhausted"

// Dispatcher routes queue deliveries to their stage handler.
type Dispatcher struct {
	stages     *Stages
	maxRetries int
}

func NewDispatcher(s *Stages, maxDeliveryRetries int) *Dispatcher {
	return &Dispatcher{stages: s, maxRetries: maxDeliveryRetries}
}

func (d *Dispatcher) MaxRetries() int { return d.maxRetries }

// Dispatch runs one delivery. A handler panic is turned into an error.
func (d *Dispatcher) Dispatch(ctx context.Context, del campaign.Delivery) (res Result, err error) {
	msg := del.Message
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		outcome := string(res.Outcome)
		if err != nil {
			outcome = "error"
			err = fmt.Errorf("stage %s: %w", msg.Stage, err)
			d.stages.trail.Error(ctx, msg.CampaignID, audit.EventStageError,
				fmt.Sprintf("%s (delivery retry %d): %v", msg.Stage, del.RetryCount, err))
		}
		metrics.StageInvocations.WithLabelValues(string(msg.Stage), outcome).Inc()
		metrics.StageDuration.WithLabelValues(string(msg.Stage)).Observe(time.Since(start).Seconds())
	}()

	switch msg.Stage {
	case campaign.StageCheckArticle:
		return d.stages.CheckArticle(ctx, msg)
	case campaign.StagePollTracking:
		return d.stages.PollTracking(ctx, msg)
	case campaign.StageProcessCampaign:
		return d.stages.ProcessCampaign(ctx, msg)
	}
	return Result{}, fmt.Errorf("%w: %q", campaign.ErrUnknownStage, msg.Stage)
}

// Handle dispatches del and, once del has used up its delivery retries,
// settles the campaign instead of returning the error again.
func (d *Dispatcher) Handle(ctx context.Context, del campaign.Delivery) (Result, error) {
	res, err := d.Dispatch(ctx, del)
	if err == nil || errors.Is(err, campaign.ErrUnknownStage) {
		return res, err
	}
	if del.RetryCount < d.maxRetries {
		return res, err
	}
	logx.Campaign(del.Message.CampaignID).Errorw("delivery_abandoned",
		"stage", del.Message.Stage, "retries", del.RetryCount, "error", err)
	return d.stages.Abandon(ctx, del.Message, err)
}

// Abandon settles a campaign whose delivery will not be retried again.
func (s *Stages) Abandon(ctx context.Context, msg campaign.TaskMessage, cause error) (Result, error) {
	return s.Settle(ctx, msg, abandonedMessage, cause)
}

// Settle ends the work msg was responsible for when nothing else will pick
// it up. A launch in progress is finished with a failure result for every
// platform still missing one; any other stage fails the campaign with
// message.
func (s *Stages) Settle(ctx context.Context, msg campaign.TaskMessage, message string, cause error) (Result, error) {
	c, res, err := s.load(ctx, msg.CampaignID)
	if c == nil {
		return deref(res), err
	}
	if !owns(msg.Stage, c.Status) {
		return skipped(c, "campaign moved past abandoned stage"), nil
	}

	reason := message
	if cause != nil {
		reason = fmt.Sprintf("%s: %v", message, cause)
	}

	if c.Status == campaign.StatusLaunching {
		for _, spec := range c.Platforms {
			if c.HasResult(spec.Platform) {
				continue
			}
			r := campaign.PlatformResult{
				Platform:   spec.Platform,
				Success:    false,
				Error:      message,
				RecordedAt: s.now(),
			}
			if _, err := s.store.AppendPlatformResult(ctx, c.ID, r); err != nil {
				return Result{}, fmt.Errorf("record abandoned %s: %w", spec.Platform, err)
			}
			s.trail.Error(ctx, c.ID, audit.EventPlatformFailed, fmt.Sprintf("%s: %s", spec.Platform, reason))
			metrics.PlatformLaunches.WithLabelValues(string(spec.Platform), "abandoned").Inc()
		}
		fresh, err := s.store.GetCampaign(ctx, c.ID)
		if err != nil {
			return Result{}, fmt.Errorf("reload campaign: %w", err)
		}
		return s.complete(ctx, fresh, summarize(fresh))
	}

	return s.fail(ctx, c, failureLabel(c.Status, msg.Stage), message)
}

// owns reports whether status is one a delivery of stage is responsible for.
func owns(stage campaign.Stage, status campaign.Status) bool {
	switch stage {
	case campaign.StageCheckArticle:
		return status == campaign.StatusPendingContentApproval || status == campaign.StatusContentApproved
	case campaign.StagePollTracking:
		return status == campaign.StatusAwaitingTrackingLink
	case campaign.StageProcessCampaign:
		return status == campaign.StatusGeneratingContent || status == campaign.StatusLaunching
	}
	return false
}

func failureLabel(status campaign.Status, stage campaign.Stage) string {
	switch status {
	case campaign.StatusPendingContentApproval, campaign.StatusContentApproved:
		return campaign.FailureContentApproval
	case campaign.StatusAwaitingTrackingLink:
		return campaign.FailureTrackingLink
	case campaign.StatusGeneratingContent:
		return campaign.FailureContentGeneration
	case campaign.StatusLaunching:
		return campaign.FailurePlatformLaunch
	}
	return stage.FailureLabel()
}

// summarize builds a launch summary from the recorded results of c.
func summarize(c *campaign.Campaign) campaign.LaunchSummary {
	out := campaign.LaunchSummary{Results: c.PlatformResults, Complete: true, AllSuccess: true}
	for _, spec := range c.Platforms {
		if !c.HasResult(spec.Platform) {
			out.Complete = false
		}
	}
	for _, r := range c.PlatformResults {
		if !r.Success {
			out.AllSuccess = false
		}
	}
	if !out.Complete {
		out.AllSuccess = false
	}
	return out
}
