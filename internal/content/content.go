// Package content produces campaign copy, keywords and media references.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
)

var (
	ErrInvalidOutput = errors.New("generator returned unusable content")
	ErrEmptyOffer    = errors.New("content params have no offer")
)

type Request struct {
	CampaignID   string
	Name         string
	Params       campaign.ContentParams
	TrackingLink string
	Platforms    []campaign.Platform
}

type Generator interface {
	Generate(ctx context.Context, req Request) (campaign.GeneratedContent, error)
}

const maxKeywords = 10

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write ad copy for a campaign named %q.\n", req.Name)
	fmt.Fprintf(&b, "Offer: %s\nCountry: %s\nLanguage: %s\n", req.Params.Offer, req.Params.Country, req.Params.Language)
	if req.Params.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", req.Params.Tone)
	}
	if len(req.Params.KeywordHints) > 0 {
		fmt.Fprintf(&b, "Keyword hints: %s\n", strings.Join(req.Params.KeywordHints, ", "))
	}
	if len(req.Platforms) > 0 {
		names := make([]string, len(req.Platforms))
		for i, p := range req.Platforms {
			names[i] = string(p)
		}
		fmt.Fprintf(&b, "Target platforms: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(&b, "Respond in %s with JSON only: ", req.Params.Language)
	b.WriteString(`{"headline": string (max 40 chars), "primary_text": string (max 125 chars), "description": string, "keywords": [string] (3-10 items)}`)
	return b.String()
}

// parseOutput decodes the model's JSON answer, tolerating markdown fences.
func parseOutput(raw string) (campaign.GeneratedContent, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var out campaign.GeneratedContent
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return campaign.GeneratedContent{}, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	out.Headline = strings.TrimSpace(out.Headline)
	out.PrimaryText = strings.TrimSpace(out.PrimaryText)
	out.Description = strings.TrimSpace(out.Description)
	if out.Headline == "" || out.PrimaryText == "" {
		return campaign.GeneratedContent{}, fmt.Errorf("%w: missing headline or primary text", ErrInvalidOutput)
	}
	out.Keywords = dedupeKeywords(out.Keywords)
	return out, nil
}

func dedupeKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.TrimSpace(k)
		key := strings.ToLower(k)
		if k == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, k)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// Template builds deterministic copy from the request alone. It backs local
// runs where no model credentials are configured.
type Template struct{}

func (Template) Generate(_ context.Context, req Request) (campaign.GeneratedContent, error) {
	offer := strings.TrimSpace(req.Params.Offer)
	if offer == "" {
		return campaign.GeneratedContent{}, ErrEmptyOffer
	}
	keywords := append([]string{offer}, req.Params.KeywordHints...)
	r := []rune(offer)
	return campaign.GeneratedContent{
		Headline:    truncate(strings.ToUpper(string(r[0]))+string(r[1:]), 40),
		PrimaryText: truncate(fmt.Sprintf("Discover the best %s options in %s.", offer, req.Params.Country), 125),
		Description: req.Name,
		Keywords:    dedupeKeywords(keywords),
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
