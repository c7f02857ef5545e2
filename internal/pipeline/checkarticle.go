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

// CheckArticle polls the traffic source for the approval of submitted content.
func (s *Stages) CheckArticle(ctx context.Context, msg campaign.TaskMessage) (Result, error) {
	c, res, err := s.load(ctx, msg.CampaignID)
	if c == nil {
		return deref(res), err
	}
	log := logx.Campaign(c.ID).With("stage", campaign.StageCheckArticle, "attempt", msg.Attempt)

	switch c.Status {
	case campaign.StatusPendingContentApproval:
	case campaign.StatusContentApproved:
		return s.routeApproved(ctx, c)
	case campaign.StatusAwaitingTrackingLink:
		if msg.Attempt == c.ContentPollAttempts && c.TrackingPollAttempts == 0 && c.TrackingPollStartedAt == nil {
			if err := s.enqueue(ctx, c, campaign.StagePollTracking, 0, 0); err != nil {
				return Result{}, err
			}
			return Result{Outcome: OutcomeResumed, Status: c.Status}, nil
		}
		return skipped(c, "tracking poll already running"), nil
	case campaign.StatusGeneratingContent:
		if msg.Attempt == c.ContentPollAttempts && c.TrackingPollAttempts == 0 {
			if err := s.enqueue(ctx, c, campaign.StageProcessCampaign, 0, 0); err != nil {
				return Result{}, err
			}
			return Result{Outcome: OutcomeResumed, Status: c.Status}, nil
		}
		return skipped(c, "content already generating"), nil
	default:
		return skipped(c, "not awaiting approval"), nil
	}

	if c.ContentPollAttempts >= s.opts.ContentPollMaxAttempts {
		return s.fail(ctx, c, campaign.FailureContentApproval, "timeout")
	}
	if msg.Attempt != c.ContentPollAttempts {
		return skipped(c, fmt.Sprintf("stale attempt %d, stored %d", msg.Attempt, c.ContentPollAttempts)), nil
	}
	if c.ContentRequestID == "" {
		return s.fail(ctx, c, campaign.FailureContentApproval, "no content request id recorded")
	}

	st, rr := retry.Do(ctx, s.opts.SourceRetry, platform.IsRetryable, func(ctx context.Context) (platform.ContentStatus, error) {
		return s.source.GetContentStatus(ctx, c.ContentRequestID)
	})
	switch rr.Outcome {
	case retry.Canceled:
		return Result{}, rr.Err
	case retry.NotRetryable:
		return s.fail(ctx, c, campaign.FailureContentApproval, rr.Err.Error())
	case retry.Exhausted:
		log.Warnw("content_status_unavailable", "attempts", rr.Attempts, "error", rr.Err)
	}

	if rr.OK() {
		switch st.State {
		case platform.ContentPublished:
			return s.approve(ctx, c, st)
		case platform.ContentRejected:
			reason := st.RejectionReason
			if reason == "" {
				reason = "content rejected"
			}
			return s.fail(ctx, c, campaign.FailureContentApproval, "rejected: "+reason)
		}
	}

	next := msg.Attempt + 1
	if next >= s.opts.ContentPollMaxAttempts {
		ok, err := s.store.RecordContentPoll(ctx, c.ID, msg.Attempt)
		if err != nil {
			return Result{}, fmt.Errorf("record content poll: %w", err)
		}
		if !ok {
			return skipped(c, "poll already counted"), nil
		}
		return s.fail(ctx, c, campaign.FailureContentApproval, "timeout")
	}

	// The next poll is queued before this one is counted. A crash in between
	// leaves the counter untouched and the redelivery polls again; the extra
	// message is discarded by the attempt check.
	if err := s.enqueue(ctx, c, campaign.StageCheckArticle, next, s.opts.ContentPollDelay); err != nil {
		return Result{}, err
	}
	ok, err := s.store.RecordContentPoll(ctx, c.ID, msg.Attempt)
	if err != nil {
		return Result{}, fmt.Errorf("record content poll: %w", err)
	}
	if !ok {
		return skipped(c, "poll already counted"), nil
	}
	s.trail.Event(ctx, c.ID, audit.EventPollAttempt, fmt.Sprintf("content %s, attempt %d/%d", stateOf(st, rr), next, s.opts.ContentPollMaxAttempts))
	log.Infow("content_poll_rescheduled", "state", stateOf(st, rr), "next_attempt", next)
	return Result{Outcome: OutcomeRescheduled, Status: c.Status, Detail: string(st.State)}, nil
}

func (s *Stages) approve(ctx context.Context, c *campaign.Campaign, st platform.ContentStatus) (Result, error) {
	approvedID := st.ApprovedID
	if approvedID == "" {
		approvedID = c.ContentRequestID
	}
	m := campaign.Mutation{ContentApprovedID: &approvedID}
	if campaign.ValidTrackingLink(st.TrackingLink) {
		link := st.TrackingLink
		m.TrackingLink = &link
	}
	ok, err := s.advance(ctx, c, campaign.StatusContentApproved, m, "content approved "+approvedID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return skipped(c, "approval already recorded"), nil
	}
	c.ContentApprovedID = approvedID
	if m.TrackingLink != nil {
		c.DeliveryTrackingLink = m.TrackingLink
	}
	return s.routeApproved(ctx, c)
}

// routeApproved sends an approved campaign down the fast path when the link
// is already usable and to tracking-link polling otherwise.
func (s *Stages) routeApproved(ctx context.Context, c *campaign.Campaign) (Result, error) {
	if campaign.ValidTrackingLink(c.TrackingLink()) {
		ok, err := s.advance(ctx, c, campaign.StatusGeneratingContent, campaign.Mutation{}, "tracking link ready at approval")
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return skipped(c, "already routed"), nil
		}
		if err := s.enqueue(ctx, c, campaign.StageProcessCampaign, 0, 0); err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeAdvanced, Status: c.Status, Detail: "fast path"}, nil
	}

	ok, err := s.advance(ctx, c, campaign.StatusAwaitingTrackingLink, campaign.Mutation{}, "waiting for tracking link")
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return skipped(c, "already routed"), nil
	}
	if err := s.enqueue(ctx, c, campaign.StagePollTracking, 0, 0); err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeAdvanced, Status: c.Status}, nil
}

func stateOf(st platform.ContentStatus, rr retry.Result) string {
	if !rr.OK() {
		return "unavailable"
	}
	if st.State == "" {
		return "unknown"
	}
	return string(st.State)
}

func deref(r *Result) Result {
	if r == nil {
		return Result{}
	}
	return *r
}
