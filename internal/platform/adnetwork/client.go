// Package adnetwork launches campaigns on the ad networks (Meta, TikTok).
// Both speak the same JSON launch contract behind different base URLs.
package adnetwork

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Mutter0815/LaunchPro/internal/platform"
)

type Client struct {
	http *platform.Client
}

func New(c *platform.Client) *Client {
	return &Client{http: c}
}

type launchReq struct {
	Name           string            `json:"name"`
	DailyBudget    int64             `json:"daily_budget"`
	Targeting      map[string]string `json:"targeting,omitempty"`
	CreativeRefs   []string          `json:"creative_refs,omitempty"`
	Headline       string            `json:"headline"`
	PrimaryText    string            `json:"primary_text"`
	Description    string            `json:"description,omitempty"`
	Keywords       []string          `json:"keywords,omitempty"`
	MediaRefs      []string          `json:"media_refs,omitempty"`
	DestinationURL string            `json:"destination_url"`
	ExternalRef    string            `json:"external_ref"`
}

type launchResp struct {
	ID string `json:"id"`
}

func (c *Client) Launch(ctx context.Context, req platform.LaunchRequest) (platform.LaunchResult, error) {
	if req.TrackingLink == "" {
		return platform.LaunchResult{}, platform.Fatal(c.http.Platform, "launch", errors.New("missing destination tracking link"))
	}
	h := http.Header{}
	h.Set("Idempotency-Key", req.IdempotencyKey)
	var out launchResp
	err := c.http.Do(ctx, "launch", http.MethodPost, "/campaigns", h, launchReq{
		Name:           req.Name,
		DailyBudget:    req.Spec.Budget,
		Targeting:      req.Spec.Targeting,
		CreativeRefs:   req.Spec.CreativeRefs,
		Headline:       req.Content.Headline,
		PrimaryText:    req.Content.PrimaryText,
		Description:    req.Content.Description,
		Keywords:       req.Content.Keywords,
		MediaRefs:      req.Content.MediaRefs,
		DestinationURL: req.TrackingLink,
		ExternalRef:    req.CampaignID,
	}, &out)
	if err != nil {
		return platform.LaunchResult{}, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return platform.LaunchResult{}, platform.Transient(c.http.Platform, "launch", errors.New("empty campaign id"))
	}
	return platform.LaunchResult{ExternalCampaignID: out.ID}, nil
}
