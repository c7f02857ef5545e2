package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Mutter0815/LaunchPro/internal/audit"
	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/platform"
	"github.com/Mutter0815/LaunchPro/internal/retry"
	"github.com/Mutter0815/LaunchPro/pkg/logx"
	"github.com/Mutter0815/LaunchPro/pkg/metrics"
)

type LaunchStore interface {
	GetCampaign(ctx context.Context, id string) (*campaign.Campaign, error)
	ClaimPlatform(ctx context.Context, id string, p campaign.Platform, token string, staleBefore time.Time) (bool, error)
	AppendPlatformResult(ctx context.Context, id string, r campaign.PlatformResult) (bool, error)
	InsertAudit(ctx context.Context, e campaign.AuditEntry) error
}

// FanOut launches a campaign on every requested platform that has no
// recorded result yet. Platforms run in parallel up to the concurrency limit
// and never affect each other.
type FanOut struct {
	store       LaunchStore
	registry    *platform.Registry
	trail       *audit.Trail
	concurrency int
	timeout     time.Duration
	newToken    func() string
	now         func() time.Time
}

func NewFanOut(st LaunchStore, reg *platform.Registry, concurrency int, perAttemptTimeout time.Duration) *FanOut {
	if concurrency <= 0 {
		concurrency = 3
	}
	if perAttemptTimeout <= 0 {
		perAttemptTimeout = 60 * time.Second
	}
	return &FanOut{
		store:       st,
		registry:    reg,
		trail:       audit.NewTrail(st),
		concurrency: concurrency,
		timeout:     perAttemptTimeout,
		newToken:    func() string { return uuid.NewString() },
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// staleAfter is how long a claim is honoured before another invocation may
// take the platform over.
func (f *FanOut) staleAfter(p retry.Policy) time.Duration {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var backoff time.Duration
	for i := 1; i < attempts; i++ {
		backoff += p.Delay(i)
	}
	return time.Duration(attempts)*f.timeout + backoff
}

func (f *FanOut) FanOut(ctx context.Context, c *campaign.Campaign) (campaign.LaunchSummary, error) {
	var g errgroup.Group
	g.SetLimit(f.concurrency)

	for _, spec := range c.Platforms {
		if c.HasResult(spec.Platform) {
			continue
		}
		g.Go(func() error {
			f.launchOne(ctx, c, spec)
			return nil
		})
	}
	_ = g.Wait()

	fresh, err := f.store.GetCampaign(ctx, c.ID)
	if err != nil {
		return campaign.LaunchSummary{}, fmt.Errorf("reload campaign: %w", err)
	}
	c.PlatformResults = fresh.PlatformResults

	out := campaign.LaunchSummary{Results: fresh.PlatformResults, Complete: true, AllSuccess: true}
	for _, spec := range c.Platforms {
		if !fresh.HasResult(spec.Platform) {
			out.Complete = false
			out.AllSuccess = false
		}
	}
	for _, r := range fresh.PlatformResults {
		if !r.Success {
			out.AllSuccess = false
		}
	}
	return out, nil
}

func (f *FanOut) launchOne(ctx context.Context, c *campaign.Campaign, spec campaign.PlatformSpec) {
	log := logx.Campaign(c.ID).With("platform", spec.Platform)
	start := time.Now()

	reg, err := f.registry.Lookup(spec.Platform)
	if err != nil {
		f.record(ctx, c, campaign.PlatformResult{Platform: spec.Platform, Error: err.Error()})
		return
	}

	ok, err := f.store.ClaimPlatform(ctx, c.ID, spec.Platform, f.newToken(), f.now().Add(-f.staleAfter(reg.Retry)))
	if err != nil {
		log.Errorw("platform_claim_error", "error", err)
		return
	}
	if !ok {
		log.Infow("platform_claim_held")
		return
	}

	req := platform.LaunchRequest{
		CampaignID:        c.ID,
		Name:              c.Name,
		Spec:              spec,
		ApprovedContentID: c.ContentApprovedID,
		TrackingLink:      c.TrackingLink(),
		IdempotencyKey:    platform.IdempotencyKey(c.ID, spec.Platform),
	}
	if c.GeneratedContent != nil {
		req.Content = *c.GeneratedContent
	}

	res, rr := retry.Do(ctx, reg.Retry, platform.IsRetryable, func(ctx context.Context) (platform.LaunchResult, error) {
		return f.attempt(ctx, reg.Launcher, req)
	})
	metrics.PlatformLaunchDuration.WithLabelValues(string(spec.Platform)).Observe(time.Since(start).Seconds())

	if rr.Outcome == retry.Canceled {
		// The claim goes stale and a later invocation picks the platform up.
		log.Warnw("platform_launch_canceled", "attempts", rr.Attempts, "error", rr.Err)
		return
	}
	r := campaign.PlatformResult{Platform: spec.Platform, Success: rr.OK()}
	if rr.OK() {
		r.ExternalCampaignID = res.ExternalCampaignID
	} else {
		r.Error = rr.Err.Error()
	}
	log.Infow("platform_launch_done", "success", r.Success, "attempts", rr.Attempts, "outcome", rr.Outcome)
	f.record(ctx, c, r)
}

// attempt runs one launch call under the per-attempt timeout.
func (f *FanOut) attempt(ctx context.Context, l platform.Launcher, req platform.LaunchRequest) (res platform.LaunchResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("launcher panic: %v", p)
		}
	}()
	return l.Launch(ctx, req)
}

func (f *FanOut) record(ctx context.Context, c *campaign.Campaign, r campaign.PlatformResult) {
	r.RecordedAt = f.now()
	ok, err := f.store.AppendPlatformResult(ctx, c.ID, r)
	if err != nil {
		logx.Campaign(c.ID).Errorw("platform_result_write_error", "platform", r.Platform, "error", err)
		return
	}
	if !ok {
		return
	}
	if r.Success {
		metrics.PlatformLaunches.WithLabelValues(string(r.Platform), "success").Inc()
		f.trail.Event(ctx, c.ID, audit.EventPlatformLaunched, fmt.Sprintf("%s: %s", r.Platform, r.ExternalCampaignID))
	} else {
		metrics.PlatformLaunches.WithLabelValues(string(r.Platform), "failure").Inc()
		f.trail.Error(ctx, c.ID, audit.EventPlatformFailed, fmt.Sprintf("%s: %s", r.Platform, r.Error))
	}
}
