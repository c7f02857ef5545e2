package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mutter0815/LaunchPro/internal/audit"
	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/content"
	"github.com/Mutter0815/LaunchPro/internal/retry"
	"github.com/Mutter0815/LaunchPro/pkg/logx"
)

// ProcessCampaign generates content once and launches on every requested
// platform. It runs under the process budget and resumes from whatever was
// already persisted.
func (s *Stages) ProcessCampaign(ctx context.Context, msg campaign.TaskMessage) (Result, error) {
	if s.opts.ProcessBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ProcessBudget)
		defer cancel()
	}

	c, res, err := s.load(ctx, msg.CampaignID)
	if c == nil {
		return deref(res), budgetErr(ctx, err)
	}

	switch c.Status {
	case campaign.StatusGeneratingContent:
		r, err := s.generate(ctx, c)
		if err != nil || r != nil {
			return deref(r), budgetErr(ctx, err)
		}
	case campaign.StatusLaunching:
	default:
		return skipped(c, "not ready to process"), nil
	}

	r, err := s.launch(ctx, c)
	return r, budgetErr(ctx, err)
}

// generate fills in generated content and moves the campaign to LAUNCHING.
// A non-nil Result means the stage is done for this invocation.
func (s *Stages) generate(ctx context.Context, c *campaign.Campaign) (*Result, error) {
	log := logx.Campaign(c.ID).With("stage", campaign.StageProcessCampaign)

	if c.GeneratedContent == nil {
		req := content.Request{
			CampaignID:   c.ID,
			Name:         c.Name,
			Params:       c.Content,
			TrackingLink: c.TrackingLink(),
		}
		for _, p := range c.Platforms {
			req.Platforms = append(req.Platforms, p.Platform)
		}
		gc, rr := retry.Do(ctx, s.opts.GenerateRetry, content.IsRetryable, func(ctx context.Context) (campaign.GeneratedContent, error) {
			return s.gen.Generate(ctx, req)
		})
		if rr.Outcome == retry.Canceled {
			return nil, canceled(ctx, rr)
		}
		if !rr.OK() {
			r, err := s.fail(ctx, c, campaign.FailureContentGeneration, rr.Err.Error())
			return &r, err
		}

		saved, err := s.store.SaveGeneratedContent(ctx, c.ID, gc)
		if err != nil {
			return nil, fmt.Errorf("save generated content: %w", err)
		}
		if saved {
			c.GeneratedContent = &gc
			s.trail.Event(ctx, c.ID, audit.EventContentGenerated, gc.Headline)
			log.Infow("content_generated", "attempts", rr.Attempts, "keywords", len(gc.Keywords))
		} else {
			fresh, err := s.store.GetCampaign(ctx, c.ID)
			if err != nil {
				return nil, fmt.Errorf("reload campaign: %w", err)
			}
			*c = *fresh
			if c.Status != campaign.StatusGeneratingContent {
				r := skipped(c, "content generated elsewhere")
				return &r, nil
			}
		}
	}

	ok, err := s.advance(ctx, c, campaign.StatusLaunching, campaign.Mutation{}, "launching on platforms")
	if err != nil {
		return nil, err
	}
	if !ok {
		fresh, err := s.store.GetCampaign(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("reload campaign: %w", err)
		}
		*c = *fresh
		if c.Status != campaign.StatusLaunching {
			r := skipped(c, "launch started elsewhere")
			return &r, nil
		}
	}
	return nil, nil
}

func (s *Stages) launch(ctx context.Context, c *campaign.Campaign) (Result, error) {
	summary, err := s.launcher.FanOut(ctx, c)
	if err != nil {
		return Result{}, fmt.Errorf("fan out: %w", err)
	}
	if !summary.Complete {
		return Result{Status: c.Status, Launch: &summary}, ErrLaunchInFlight
	}
	return s.complete(ctx, c, summary)
}

func (s *Stages) complete(ctx context.Context, c *campaign.Campaign, summary campaign.LaunchSummary) (Result, error) {
	ok, err := s.advance(ctx, c, campaign.StatusActive, campaign.Mutation{}, "all platforms recorded")
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return skipped(c, "already active"), nil
	}
	c.PlatformResults = summary.Results

	msg := "launched"
	if !summary.AllSuccess {
		msg = "launched with errors"
	}
	failed := 0
	for _, r := range summary.Results {
		if !r.Success {
			failed++
		}
	}
	s.trail.Record(ctx, campaign.AuditEntry{
		CampaignID: c.ID,
		Event:      audit.EventPipelineCompleted,
		Message:    fmt.Sprintf("%s: %d/%d platforms succeeded", msg, len(summary.Results)-failed, len(summary.Results)),
		IsError:    !summary.AllSuccess,
	})
	logx.Campaign(c.ID).Infow("pipeline_completed", "all_success", summary.AllSuccess, "failed", failed)
	return Result{Outcome: OutcomeCompleted, Status: campaign.StatusActive, Detail: msg, Launch: &summary}, nil
}

// budgetErr reports budget exhaustion as ErrProcessTimeout.
func budgetErr(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, ErrProcessTimeout) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrProcessTimeout, err)
	}
	return err
}
