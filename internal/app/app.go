// Package app assembles the pipeline from configuration. The API and the
// worker build the same graph so either can run any stage.
package app

import (
	"context"
	"fmt"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/content"
	"github.com/Mutter0815/LaunchPro/internal/orchestrator"
	"github.com/Mutter0815/LaunchPro/internal/pipeline"
	"github.com/Mutter0815/LaunchPro/internal/platform"
	"github.com/Mutter0815/LaunchPro/internal/platform/adnetwork"
	"github.com/Mutter0815/LaunchPro/internal/platform/trafficsource"
	"github.com/Mutter0815/LaunchPro/internal/store"
	"github.com/Mutter0815/LaunchPro/pkg/config"
	"github.com/Mutter0815/LaunchPro/pkg/logx"
)

// Store is everything the assembled pipeline needs from persistence.
// Both *store.Store and *store.Memory satisfy it.
type Store interface {
	orchestrator.Store
	orchestrator.LaunchStore
	pipeline.Store
}

type Deps struct {
	Store     Store
	Queue     pipeline.Enqueuer
	Pipeline  config.Pipeline
	Platforms map[campaign.Platform]config.Platform
	GenAI     config.GenAI
}

type App struct {
	Stages     *pipeline.Stages
	Dispatcher *pipeline.Dispatcher
	Service    *orchestrator.Service
	Source     platform.ContentSource
}

var _ Store = (*store.Store)(nil)
var _ Store = (*store.Memory)(nil)

func Build(ctx context.Context, d Deps) (*App, error) {
	ts, ok := d.Platforms[campaign.PlatformTrafficSource]
	if !ok || ts.BaseURL == "" {
		return nil, fmt.Errorf("traffic source base url is not configured")
	}
	source := trafficsource.New(platform.NewClient(campaign.PlatformTrafficSource, ts.BaseURL, ts.APIKey, ts.Timeout))

	reg := platform.NewRegistry()
	reg.Register(campaign.PlatformTrafficSource, source, ts.Retry)
	for _, p := range []campaign.Platform{campaign.PlatformMeta, campaign.PlatformTikTok} {
		pc, ok := d.Platforms[p]
		if !ok || pc.BaseURL == "" {
			logx.L().Warnw("platform_not_configured", "platform", p)
			continue
		}
		reg.Register(p, adnetwork.New(platform.NewClient(p, pc.BaseURL, pc.APIKey, pc.Timeout)), pc.Retry)
	}

	gen, err := generator(ctx, d.GenAI)
	if err != nil {
		return nil, err
	}

	opts := pipeline.DefaultOptions()
	opts.TrackingPollMaxAttempts = d.Pipeline.TrackingPollMaxAttempts
	opts.TrackingPollDelay = d.Pipeline.TrackingPollDelay
	opts.ContentPollMaxAttempts = d.Pipeline.ContentPollMaxAttempts
	opts.ContentPollDelay = d.Pipeline.ContentPollDelay
	opts.ProcessBudget = d.Pipeline.ProcessBudget
	opts.SourceRetry = ts.Retry

	fan := orchestrator.NewFanOut(d.Store, reg, d.Pipeline.LaunchConcurrency, d.Pipeline.PlatformLaunchTimeout)
	stages := pipeline.New(d.Store, source, gen, fan, d.Queue, opts)
	svc := orchestrator.NewService(d.Store, source, d.Queue, stages, orchestrator.ServiceOptions{
		ContentPollDelay: opts.ContentPollDelay,
		SourceRetry:      ts.Retry,
	})

	logx.L().Infow("pipeline_assembled", "platforms", reg.Platforms(), "generator", fmt.Sprintf("%T", gen))
	return &App{
		Stages:     stages,
		Dispatcher: pipeline.NewDispatcher(stages, d.Pipeline.MaxDeliveryRetries),
		Service:    svc,
		Source:     source,
	}, nil
}

// generator picks Gemini when a key is configured and the template
// generator otherwise.
func generator(ctx context.Context, cfg config.GenAI) (content.Generator, error) {
	if cfg.APIKey == "" {
		return content.Template{}, nil
	}
	g, err := content.NewGenAI(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, err
	}
	return g, nil
}
