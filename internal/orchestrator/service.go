// Package orchestrator is the launch entrypoint and the platform fan-out.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mutter0815/LaunchPro/internal/audit"
	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/pipeline"
	"github.com/Mutter0815/LaunchPro/internal/platform"
	"github.com/Mutter0815/LaunchPro/internal/retry"
	"github.com/Mutter0815/LaunchPro/pkg/logx"
	"github.com/Mutter0815/LaunchPro/pkg/metrics"
)

type Store interface {
	CreateCampaign(ctx context.Context, c *campaign.Campaign) error
	GetCampaign(ctx context.Context, id string) (*campaign.Campaign, error)
	Transition(ctx context.Context, id string, from, to campaign.Status, m campaign.Mutation) (bool, error)
	SaveGeneratedContent(ctx context.Context, id string, gc campaign.GeneratedContent) (bool, error)
	InsertAudit(ctx context.Context, e campaign.AuditEntry) error
}

// Processor runs process-campaign inline for launches that skip polling.
type Processor interface {
	ProcessCampaign(ctx context.Context, msg campaign.TaskMessage) (pipeline.Result, error)
	Settle(ctx context.Context, msg campaign.TaskMessage, message string, cause error) (pipeline.Result, error)
}

type ServiceOptions struct {
	ContentPollDelay time.Duration
	SourceRetry      retry.Policy
}

type Service struct {
	store     Store
	source    platform.ContentSource
	queue     pipeline.Enqueuer
	processor Processor
	trail     *audit.Trail
	opts      ServiceOptions
	newID     func() string
	now       func() time.Time
}

func NewService(st Store, source platform.ContentSource, q pipeline.Enqueuer, p Processor, opts ServiceOptions) *Service {
	return &Service{
		store:     st,
		source:    source,
		queue:     q,
		processor: p,
		trail:     audit.NewTrail(st),
		opts:      opts,
		newID:     func() string { return uuid.NewString() },
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Validate checks a launch request independently of transport binding.
func Validate(req campaign.LaunchReq) error {
	var problems []string
	if strings.TrimSpace(req.Name) == "" {
		problems = append(problems, "name is required")
	}
	if len(req.Platforms) == 0 {
		problems = append(problems, "at least one platform is required")
	}
	seen := map[campaign.Platform]bool{}
	for _, p := range req.Platforms {
		if _, ok := campaign.ParsePlatform(string(p.Platform)); !ok {
			problems = append(problems, fmt.Sprintf("unknown platform %q", p.Platform))
			continue
		}
		if seen[p.Platform] {
			problems = append(problems, fmt.Sprintf("platform %s listed twice", p.Platform))
		}
		seen[p.Platform] = true
		if p.Budget <= 0 {
			problems = append(problems, fmt.Sprintf("platform %s: budget must be positive", p.Platform))
		}
	}
	if !directLaunch(req) && strings.TrimSpace(req.Content.Offer) == "" {
		problems = append(problems, "content.offer is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", campaign.ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

// directLaunch reports whether req carries approved content with a usable
// tracking link, so it can go straight to generation and launch.
func directLaunch(req campaign.LaunchReq) bool {
	e := req.Existing
	return e != nil && e.ApprovedContentID != "" && campaign.ValidTrackingLink(e.TrackingLink)
}

// Launch creates a campaign and starts its pipeline. With existing approved
// content the launch runs inline; otherwise content is submitted and the
// call returns once the first approval check is queued.
func (s *Service) Launch(ctx context.Context, req campaign.LaunchReq) (campaign.LaunchResp, error) {
	if err := Validate(req); err != nil {
		return campaign.LaunchResp{}, err
	}

	c := &campaign.Campaign{
		ID:              s.newID(),
		Name:            strings.TrimSpace(req.Name),
		Status:          campaign.StatusDraft,
		Platforms:       req.Platforms,
		Content:         req.Content,
		PlatformResults: []campaign.PlatformResult{},
	}
	if err := s.store.CreateCampaign(ctx, c); err != nil {
		return campaign.LaunchResp{}, fmt.Errorf("create campaign: %w", err)
	}
	log := logx.Campaign(c.ID)
	log.Infow("campaign_created", "name", c.Name, "platforms", len(c.Platforms), "direct", directLaunch(req))

	if directLaunch(req) {
		metrics.CampaignsLaunched.WithLabelValues("direct").Inc()
		return s.launchDirect(ctx, c, req.Existing)
	}
	metrics.CampaignsLaunched.WithLabelValues("submission").Inc()
	return s.submit(ctx, c)
}

func (s *Service) launchDirect(ctx context.Context, c *campaign.Campaign, e *campaign.ExistingContent) (campaign.LaunchResp, error) {
	approved, link := e.ApprovedContentID, strings.TrimSpace(e.TrackingLink)
	ok, err := s.store.Transition(ctx, c.ID, campaign.StatusDraft, campaign.StatusGeneratingContent,
		campaign.Mutation{ContentApprovedID: &approved, TrackingLink: &link})
	if err != nil {
		return campaign.LaunchResp{}, fmt.Errorf("start direct launch: %w", err)
	}
	if !ok {
		return s.current(ctx, c.ID)
	}
	s.trail.Transition(ctx, c.ID, campaign.StatusDraft, campaign.StatusGeneratingContent, "existing approved content "+approved)

	if e.Generated != nil {
		if _, err := s.store.SaveGeneratedContent(ctx, c.ID, *e.Generated); err != nil {
			return campaign.LaunchResp{}, fmt.Errorf("save supplied content: %w", err)
		}
		s.trail.Event(ctx, c.ID, audit.EventContentGenerated, "supplied with request")
	}

	msg := campaign.TaskMessage{CampaignID: c.ID, Stage: campaign.StageProcessCampaign}
	if _, err := s.processor.ProcessCampaign(ctx, msg); err != nil {
		// Hand the rest to the queue; the stage resumes from stored state.
		logx.Campaign(c.ID).Warnw("inline_process_deferred", "error", err)
		if qerr := s.queue.Enqueue(ctx, msg, 0); qerr != nil {
			// Nothing will resume the campaign, so settle it here.
			cause := errors.Join(err, qerr)
			if _, serr := s.processor.Settle(context.WithoutCancel(ctx), msg, "enqueue process-campaign failed", cause); serr != nil {
				logx.Campaign(c.ID).Errorw("direct_launch_settle_error", "error", serr)
			}
			return campaign.LaunchResp{}, fmt.Errorf("enqueue process-campaign: %w", cause)
		}
	}
	return s.current(ctx, c.ID)
}

func (s *Service) submit(ctx context.Context, c *campaign.Campaign) (campaign.LaunchResp, error) {
	requestID, rr := retry.Do(ctx, s.opts.SourceRetry, platform.IsRetryable, func(ctx context.Context) (string, error) {
		return s.source.SubmitContent(ctx, platform.ContentRequest{CampaignID: c.ID, Name: c.Name, Params: c.Content})
	})
	if !rr.OK() {
		return s.failDraft(ctx, c, rr.Err)
	}
	s.trail.Event(ctx, c.ID, audit.EventContentSubmitted, "request "+requestID)

	ok, err := s.store.Transition(ctx, c.ID, campaign.StatusDraft, campaign.StatusPendingContentApproval,
		campaign.Mutation{ContentRequestID: &requestID})
	if err != nil {
		return campaign.LaunchResp{}, fmt.Errorf("record submission: %w", err)
	}
	if !ok {
		return s.current(ctx, c.ID)
	}
	s.trail.Transition(ctx, c.ID, campaign.StatusDraft, campaign.StatusPendingContentApproval, "awaiting approval")

	msg := campaign.TaskMessage{CampaignID: c.ID, Stage: campaign.StageCheckArticle}
	if err := s.queue.Enqueue(ctx, msg, s.opts.ContentPollDelay); err != nil {
		detail := campaign.ErrorDetail{Stage: campaign.FailureContentSubmission, Message: "enqueue approval check: " + err.Error(), Timestamp: s.now()}
		if ok, terr := s.store.Transition(ctx, c.ID, campaign.StatusPendingContentApproval, campaign.StatusFailed,
			campaign.Mutation{ErrorDetail: &detail}); terr == nil && ok {
			s.trail.Transition(ctx, c.ID, campaign.StatusPendingContentApproval, campaign.StatusFailed, detail.Message)
		}
		return campaign.LaunchResp{}, fmt.Errorf("enqueue approval check: %w", err)
	}
	return s.current(ctx, c.ID)
}

func (s *Service) failDraft(ctx context.Context, c *campaign.Campaign, cause error) (campaign.LaunchResp, error) {
	detail := campaign.ErrorDetail{Stage: campaign.FailureContentSubmission, Message: cause.Error(), Timestamp: s.now()}
	ok, err := s.store.Transition(ctx, c.ID, campaign.StatusDraft, campaign.StatusFailed, campaign.Mutation{ErrorDetail: &detail})
	if err != nil {
		return campaign.LaunchResp{}, fmt.Errorf("record submission failure: %w", err)
	}
	if ok {
		s.trail.Transition(ctx, c.ID, campaign.StatusDraft, campaign.StatusFailed, "content submission: "+cause.Error())
	}
	logx.Campaign(c.ID).Warnw("content_submission_failed", "error", cause)
	return s.current(ctx, c.ID)
}

func (s *Service) current(ctx context.Context, id string) (campaign.LaunchResp, error) {
	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return campaign.LaunchResp{}, err
	}
	return Response(c), nil
}

// Response renders the launch view of c.
func Response(c *campaign.Campaign) campaign.LaunchResp {
	resp := campaign.LaunchResp{
		CampaignID:      c.ID,
		Status:          c.Status,
		PlatformResults: c.PlatformResults,
		ErrorDetail:     c.ErrorDetail,
	}
	if resp.PlatformResults == nil {
		resp.PlatformResults = []campaign.PlatformResult{}
	}
	resp.AllSuccess = c.Status == campaign.StatusActive && len(c.PlatformResults) == len(c.Platforms)
	for _, r := range c.PlatformResults {
		if !r.Success {
			resp.AllSuccess = false
		}
	}
	return resp
}
