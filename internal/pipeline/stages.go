// Package pipeline holds the queue-driven stage handlers. Every handler loads
// the campaign, checks the status it expects, does at most one unit of
// upstream work and moves the campaign with a guarded transition, so a
// redelivered or duplicated message is always safe to run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mutter0815/LaunchPro/internal/audit"
	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/content"
	"github.com/Mutter0815/LaunchPro/internal/platform"
	"github.com/Mutter0815/LaunchPro/internal/retry"
	"github.com/Mutter0815/LaunchPro/pkg/logx"
)

var (
	// ErrProcessTimeout is returned when process-campaign runs out of its
	// budget. The queue redelivers and the stage resumes where it stopped.
	ErrProcessTimeout = errors.New("process-campaign budget exceeded")
	// ErrLaunchInFlight means another invocation holds a platform claim.
	ErrLaunchInFlight = errors.New("platform launch in flight elsewhere")
)

type Store interface {
	GetCampaign(ctx context.Context, id string) (*campaign.Campaign, error)
	Transition(ctx context.Context, id string, from, to campaign.Status, m campaign.Mutation) (bool, error)
	RecordContentPoll(ctx context.Context, id string, expected int) (bool, error)
	RecordTrackingPoll(ctx context.Context, id string, expected int) (bool, error)
	SaveGeneratedContent(ctx context.Context, id string, gc campaign.GeneratedContent) (bool, error)
	AppendPlatformResult(ctx context.Context, id string, r campaign.PlatformResult) (bool, error)
	InsertAudit(ctx context.Context, e campaign.AuditEntry) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, msg campaign.TaskMessage, delay time.Duration) error
}

// Launcher fans a LAUNCHING campaign out to its platforms.
type Launcher interface {
	FanOut(ctx context.Context, c *campaign.Campaign) (campaign.LaunchSummary, error)
}

type Options struct {
	TrackingPollMaxAttempts int
	TrackingPollDelay       time.Duration
	ContentPollMaxAttempts  int
	ContentPollDelay        time.Duration
	ProcessBudget           time.Duration
	// SourceRetry wraps every traffic-source call.
	SourceRetry   retry.Policy
	GenerateRetry retry.Policy
}

func DefaultOptions() Options {
	return Options{
		TrackingPollMaxAttempts: 20,
		TrackingPollDelay:       30 * time.Second,
		ContentPollMaxAttempts:  30,
		ContentPollDelay:        60 * time.Second,
		ProcessBudget:           14 * time.Minute,
		SourceRetry:             retry.Policy{MaxAttempts: 5, InitialDelay: time.Second, Multiplier: 2, MaxDelay: 20 * time.Second},
		GenerateRetry:           retry.Policy{MaxAttempts: 3, InitialDelay: 2 * time.Second, Multiplier: 2, MaxDelay: 30 * time.Second},
	}
}

type Outcome string

const (
	// OutcomeAdvanced: the campaign moved forward and the next stage is queued.
	OutcomeAdvanced    Outcome = "advanced"
	OutcomeRescheduled Outcome = "rescheduled"
	// OutcomeResumed: a handoff lost to a crash was re-issued.
	OutcomeResumed   Outcome = "resumed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
	OutcomeCompleted Outcome = "completed"
)

// Result describes what one invocation did. Terminal failures are results,
// not errors; errors are reserved for conditions the queue should retry.
type Result struct {
	Outcome Outcome
	Status  campaign.Status
	Detail  string
	Launch  *campaign.LaunchSummary
}

type Stages struct {
	store    Store
	source   platform.ContentSource
	gen      content.Generator
	launcher Launcher
	queue    Enqueuer
	trail    *audit.Trail
	opts     Options
	now      func() time.Time
}

func New(st Store, source platform.ContentSource, gen content.Generator, launcher Launcher, q Enqueuer, opts Options) *Stages {
	return &Stages{
		store:    st,
		source:   source,
		gen:      gen,
		launcher: launcher,
		queue:    q,
		trail:    audit.NewTrail(st),
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func skipped(c *campaign.Campaign, why string) Result {
	logx.Campaign(c.ID).Debugw("stage_skipped", "status", c.Status, "reason", why)
	return Result{Outcome: OutcomeSkipped, Status: c.Status, Detail: why}
}

// load fetches the campaign. A missing campaign yields a skipped result so
// stale messages are dropped.
func (s *Stages) load(ctx context.Context, id string) (*campaign.Campaign, *Result, error) {
	c, err := s.store.GetCampaign(ctx, id)
	if errors.Is(err, campaign.ErrNotFound) {
		logx.Campaign(id).Warnw("stage_campaign_missing")
		return nil, &Result{Outcome: OutcomeSkipped, Detail: "campaign not found"}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load campaign: %w", err)
	}
	return c, nil, nil
}

// advance performs a guarded transition and records it. It reports false when
// another invocation already moved the campaign.
func (s *Stages) advance(ctx context.Context, c *campaign.Campaign, to campaign.Status, m campaign.Mutation, msg string) (bool, error) {
	ok, err := s.store.Transition(ctx, c.ID, c.Status, to, m)
	if err != nil {
		return false, fmt.Errorf("transition %s -> %s: %w", c.Status, to, err)
	}
	if !ok {
		return false, nil
	}
	s.trail.Transition(ctx, c.ID, c.Status, to, msg)
	c.Status = to
	return true, nil
}

// fail moves c to FAILED with an error detail.
func (s *Stages) fail(ctx context.Context, c *campaign.Campaign, label, message string) (Result, error) {
	detail := campaign.ErrorDetail{Stage: label, Message: message, Timestamp: s.now()}
	from := c.Status
	ok, err := s.advance(ctx, c, campaign.StatusFailed, campaign.Mutation{ErrorDetail: &detail}, label+": "+message)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return skipped(c, "status changed before failure was recorded"), nil
	}
	c.ErrorDetail = &detail
	logx.Campaign(c.ID).Warnw("campaign_failed", "from", from, "stage", label, "error", message)
	return Result{Outcome: OutcomeFailed, Status: campaign.StatusFailed, Detail: message}, nil
}

func (s *Stages) enqueue(ctx context.Context, c *campaign.Campaign, stage campaign.Stage, attempt int, delay time.Duration) error {
	msg := campaign.TaskMessage{CampaignID: c.ID, Stage: stage, Attempt: attempt}
	if err := s.queue.Enqueue(ctx, msg, delay); err != nil {
		return fmt.Errorf("enqueue %s: %w", stage, err)
	}
	return nil
}

// canceled maps a retry cancellation to the error the queue should see.
func canceled(ctx context.Context, res retry.Result) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrProcessTimeout, res.Err)
	}
	return res.Err
}
