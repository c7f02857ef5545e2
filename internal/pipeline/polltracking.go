package pipeline

import (
	"context"
	"fmt"

	"github.com/Mutter0815/LaunchPro/internal/audit"
	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/platform"
	"github.com/Mutter0815/LaunchPro/internal/retry"
	"github.com/Mutter0815/LaunchPro/pkg/logx"
)

// PollTracking waits for the traffic source to emit a usable delivery
// tracking link for the approved content.
func (s *Stages) PollTracking(ctx context.Context, msg campaign.TaskMessage) (Result, error) {
	c, res, err := s.load(ctx, msg.CampaignID)
	if c == nil {
		return deref(res), err
	}
	log := logx.Campaign(c.ID).With("stage", campaign.StagePollTracking, "attempt", msg.Attempt)

	switch c.Status {
	case campaign.StatusAwaitingTrackingLink:
	case campaign.StatusGeneratingContent:
		// Link found but the process-campaign handoff may have been lost.
		if msg.Attempt == c.TrackingPollAttempts {
			if err := s.enqueue(ctx, c, campaign.StageProcessCampaign, 0, 0); err != nil {
				return Result{}, err
			}
			return Result{Outcome: OutcomeResumed, Status: c.Status}, nil
		}
		return skipped(c, "tracking link already resolved"), nil
	default:
		return skipped(c, "not awaiting tracking link"), nil
	}

	if c.TrackingPollAttempts >= s.opts.TrackingPollMaxAttempts {
		return s.fail(ctx, c, campaign.FailureTrackingLink, "timeout")
	}
	if msg.Attempt != c.TrackingPollAttempts {
		return skipped(c, fmt.Sprintf("stale attempt %d, stored %d", msg.Attempt, c.TrackingPollAttempts)), nil
	}

	contentID := c.ContentApprovedID
	if contentID == "" {
		contentID = c.ContentRequestID
	}
	link, rr := retry.Do(ctx, s.opts.SourceRetry, platform.IsRetryable, func(ctx context.Context) (string, error) {
		return s.source.GetTrackingLink(ctx, contentID)
	})
	switch rr.Outcome {
	case retry.Canceled:
		return Result{}, rr.Err
	case retry.NotRetryable:
		return s.fail(ctx, c, campaign.FailureTrackingLink, rr.Err.Error())
	case retry.Exhausted:
		log.Warnw("tracking_link_unavailable", "attempts", rr.Attempts, "error", rr.Err)
	}

	if rr.OK() && campaign.ValidTrackingLink(link) {
		ok, err := s.advance(ctx, c, campaign.StatusGeneratingContent, campaign.Mutation{TrackingLink: &link}, "tracking link received")
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return skipped(c, "tracking link already recorded"), nil
		}
		c.DeliveryTrackingLink = &link
		if err := s.enqueue(ctx, c, campaign.StageProcessCampaign, 0, 0); err != nil {
			return Result{}, err
		}
		log.Infow("tracking_link_ready", "polls", msg.Attempt+1)
		return Result{Outcome: OutcomeAdvanced, Status: c.Status}, nil
	}
	if rr.OK() && link != "" {
		log.Infow("tracking_link_not_usable", "link", link)
	}

	next := msg.Attempt + 1
	if next >= s.opts.TrackingPollMaxAttempts {
		ok, err := s.store.RecordTrackingPoll(ctx, c.ID, msg.Attempt)
		if err != nil {
			return Result{}, fmt.Errorf("record tracking poll: %w", err)
		}
		if !ok {
			return skipped(c, "poll already counted"), nil
		}
		return s.fail(ctx, c, campaign.FailureTrackingLink, "timeout")
	}

	if err := s.enqueue(ctx, c, campaign.StagePollTracking, next, s.opts.TrackingPollDelay); err != nil {
		return Result{}, err
	}
	ok, err := s.store.RecordTrackingPoll(ctx, c.ID, msg.Attempt)
	if err != nil {
		return Result{}, fmt.Errorf("record tracking poll: %w", err)
	}
	if !ok {
		return skipped(c, "poll already counted"), nil
	}
	s.trail.Event(ctx, c.ID, audit.EventPollAttempt, fmt.Sprintf("tracking link not ready, attempt %d/%d", next, s.opts.TrackingPollMaxAttempts))
	log.Infow("tracking_poll_rescheduled", "next_attempt", next)
	return Result{Outcome: OutcomeRescheduled, Status: c.Status}, nil
}
