// Package platform defines the boundary to the external ad platforms. The
// traffic source hosts the article and emits the delivery tracking link; every
// platform, the traffic source included, can launch a campaign.
package platform

//go:generate mockgen -source=platform.go -destination=platformmock/platform.go -package=platformmock

import (
	"context"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
)

type ContentState string

const (
	ContentPending   ContentState = "pending"
	ContentInReview  ContentState = "in_review"
	ContentPublished ContentState = "published"
	ContentRejected  ContentState = "rejected"
)

type ContentRequest struct {
	CampaignID string
	Name       string
	Params     campaign.ContentParams
}

type ContentStatus struct {
	State           ContentState
	ApprovedID      string
	TrackingLink    string
	RejectionReason string
}

type LaunchRequest struct {
	CampaignID        string
	Name              string
	Spec              campaign.PlatformSpec
	Content           campaign.GeneratedContent
	ApprovedContentID string
	TrackingLink      string
	// IdempotencyKey is stable per (campaign, platform).
	IdempotencyKey string
}

type LaunchResult struct {
	ExternalCampaignID string
}

// ContentSource is the traffic-source side of the pipeline.
type ContentSource interface {
	SubmitContent(ctx context.Context, req ContentRequest) (string, error)
	GetContentStatus(ctx context.Context, requestID string) (ContentStatus, error)
	GetTrackingLink(ctx context.Context, contentID string) (string, error)
}

type Launcher interface {
	Launch(ctx context.Context, req LaunchRequest) (LaunchResult, error)
}

func IdempotencyKey(campaignID string, p campaign.Platform) string {
	return campaignID + ":" + string(p)
}
