// Package trafficsource talks to the traffic-source platform that reviews
// article content, issues delivery tracking links and hosts campaigns.
package trafficsource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/platform"
)

type Client struct {
	http *platform.Client
}

func New(c *platform.Client) *Client {
	return &Client{http: c}
}

type submitReq struct {
	CampaignRef string   `json:"campaign_ref"`
	Name        string   `json:"name"`
	Offer       string   `json:"offer"`
	Country     string   `json:"country"`
	Language    string   `json:"language"`
	Keywords    []string `json:"keywords,omitempty"`
	Tone        string   `json:"tone,omitempty"`
}

type submitResp struct {
	RequestID string `json:"request_id"`
}

type statusResp struct {
	Status          string `json:"status"`
	ContentID       string `json:"content_id"`
	TrackingLink    string `json:"tracking_link"`
	RejectionReason string `json:"rejection_reason"`
}

type trackingResp struct {
	TrackingLink string `json:"tracking_link"`
}

type launchReq struct {
	Name        string            `json:"name"`
	ContentID   string            `json:"content_id"`
	Country     string            `json:"country"`
	Budget      int64             `json:"budget"`
	Targeting   map[string]string `json:"targeting,omitempty"`
	Keywords    []string          `json:"keywords,omitempty"`
	ExternalRef string            `json:"external_ref"`
}

type launchResp struct {
	CampaignID flexID `json:"campaign_id"`
}

// flexID accepts ids sent either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = flexID(b)
	return nil
}

func (c *Client) SubmitContent(ctx context.Context, req platform.ContentRequest) (string, error) {
	var out submitResp
	err := c.http.Do(ctx, "submit_content", http.MethodPost, "/content", nil, submitReq{
		CampaignRef: req.CampaignID,
		Name:        req.Name,
		Offer:       req.Params.Offer,
		Country:     req.Params.Country,
		Language:    req.Params.Language,
		Keywords:    req.Params.KeywordHints,
		Tone:        req.Params.Tone,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.RequestID == "" {
		return "", platform.Transient(campaign.PlatformTrafficSource, "submit_content", errors.New("empty request id"))
	}
	return out.RequestID, nil
}

func (c *Client) GetContentStatus(ctx context.Context, requestID string) (platform.ContentStatus, error) {
	var out statusResp
	if err := c.http.Do(ctx, "content_status", http.MethodGet, "/content/"+url.PathEscape(requestID), nil, nil, &out); err != nil {
		return platform.ContentStatus{}, err
	}
	return platform.ContentStatus{
		State:           normalizeState(out.Status),
		ApprovedID:      out.ContentID,
		TrackingLink:    strings.TrimSpace(out.TrackingLink),
		RejectionReason: out.RejectionReason,
	}, nil
}

// GetTrackingLink returns "" while the link is not provisioned yet.
func (c *Client) GetTrackingLink(ctx context.Context, contentID string) (string, error) {
	var out trackingResp
	err := c.http.Do(ctx, "tracking_link", http.MethodGet, "/content/"+url.PathEscape(contentID)+"/tracking-link", nil, nil, &out)
	if err != nil {
		var pe *platform.Error
		if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(out.TrackingLink), nil
}

func (c *Client) Launch(ctx context.Context, req platform.LaunchRequest) (platform.LaunchResult, error) {
	h := http.Header{}
	h.Set("Idempotency-Key", req.IdempotencyKey)
	var out launchResp
	err := c.http.Do(ctx, "launch", http.MethodPost, "/campaigns", h, launchReq{
		Name:        req.Name,
		ContentID:   req.ApprovedContentID,
		Country:     req.Spec.Targeting["country"],
		Budget:      req.Spec.Budget,
		Targeting:   req.Spec.Targeting,
		Keywords:    req.Content.Keywords,
		ExternalRef: req.CampaignID,
	}, &out)
	if err != nil {
		return platform.LaunchResult{}, err
	}
	id := strings.TrimSpace(string(out.CampaignID))
	if id == "" {
		return platform.LaunchResult{}, platform.Transient(campaign.PlatformTrafficSource, "launch", errors.New("empty campaign id"))
	}
	return platform.LaunchResult{ExternalCampaignID: id}, nil
}

func normalizeState(s string) platform.ContentState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "published", "approved", "active":
		return platform.ContentPublished
	case "rejected", "declined":
		return platform.ContentRejected
	case "in_review", "review", "reviewing":
		return platform.ContentInReview
	default:
		return platform.ContentPending
	}
}
