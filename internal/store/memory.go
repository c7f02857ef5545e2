package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
)

type claim struct {
	token     string
	claimedAt time.Time
}

// Memory is an in-process store with the same guarded-update semantics as
// Store. It backs tests and local runs without Postgres.
type Memory struct {
	mu        sync.Mutex
	campaigns map[string]*campaign.Campaign
	claims    map[string]claim
	audit     []campaign.AuditEntry
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		campaigns: map[string]*campaign.Campaign{},
		claims:    map[string]claim{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func claimKey(id string, p campaign.Platform) string { return id + "/" + string(p) }

func (m *Memory) CreateCampaign(_ context.Context, c *campaign.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.campaigns[c.ID]; ok {
		return fmt.Errorf("campaign %s already exists", c.ID)
	}
	now := m.now()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.PlatformResults == nil {
		c.PlatformResults = []campaign.PlatformResult{}
	}
	m.campaigns[c.ID] = clone(c)
	m.appendAudit(campaign.AuditEntry{
		CampaignID: c.ID,
		Event:      "campaign_created",
		NewStatus:  c.Status,
		Message:    c.Name,
		Timestamp:  now,
	})
	return nil
}

func (m *Memory) GetCampaign(_ context.Context, id string) (*campaign.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, campaign.NewNotFound(id)
	}
	return clone(c), nil
}

func (m *Memory) ListCampaigns(_ context.Context, status campaign.Status, limit, offset int) ([]campaign.CampaignListItem, error) {
	if limit <= 0 || limit > 1000 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]*campaign.Campaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		if status == "" || c.Status == status {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	out := []campaign.CampaignListItem{}
	for i := offset; i < len(all) && len(out) < limit; i++ {
		c := all[i]
		it := campaign.CampaignListItem{
			ID:        c.ID,
			Name:      c.Name,
			Status:    c.Status,
			Platforms: len(c.Platforms),
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		}
		for _, r := range c.PlatformResults {
			if r.Success {
				it.Launched++
			} else {
				it.Failed++
			}
		}
		out = append(out, it)
	}
	return out, nil
}

func (m *Memory) Transition(_ context.Context, id string, from, to campaign.Status, mut campaign.Mutation) (bool, error) {
	if !campaign.CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", campaign.ErrIllegalTransition, from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	if mut.ContentRequestID != nil && *mut.ContentRequestID != "" {
		c.ContentRequestID = *mut.ContentRequestID
	}
	if mut.ContentApprovedID != nil && *mut.ContentApprovedID != "" {
		c.ContentApprovedID = *mut.ContentApprovedID
	}
	if mut.TrackingLink != nil && *mut.TrackingLink != "" {
		v := *mut.TrackingLink
		c.DeliveryTrackingLink = &v
	}
	if mut.ErrorDetail != nil {
		d := *mut.ErrorDetail
		c.ErrorDetail = &d
	}
	c.UpdatedAt = m.now()
	return true, nil
}

func (m *Memory) RecordContentPoll(_ context.Context, id string, expected int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != campaign.StatusPendingContentApproval || c.ContentPollAttempts != expected {
		return false, nil
	}
	c.ContentPollAttempts++
	c.UpdatedAt = m.now()
	return true, nil
}

func (m *Memory) RecordTrackingPoll(_ context.Context, id string, expected int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != campaign.StatusAwaitingTrackingLink || c.TrackingPollAttempts != expected {
		return false, nil
	}
	c.TrackingPollAttempts++
	now := m.now()
	if c.TrackingPollStartedAt == nil {
		c.TrackingPollStartedAt = &now
	}
	c.UpdatedAt = now
	return true, nil
}

func (m *Memory) SaveGeneratedContent(_ context.Context, id string, gc campaign.GeneratedContent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.GeneratedContent != nil {
		return false, nil
	}
	c.GeneratedContent = cloneGenerated(&gc)
	c.UpdatedAt = m.now()
	return true, nil
}

func (m *Memory) ClaimPlatform(_ context.Context, id string, p campaign.Platform, token string, staleBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return false, campaign.NewNotFound(id)
	}
	k := claimKey(id, p)
	if existing, ok := m.claims[k]; ok {
		if !existing.claimedAt.Before(staleBefore) || c.HasResult(p) {
			return false, nil
		}
	}
	m.claims[k] = claim{token: token, claimedAt: m.now()}
	return true, nil
}

func (m *Memory) AppendPlatformResult(_ context.Context, id string, r campaign.PlatformResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return false, campaign.NewNotFound(id)
	}
	if c.HasResult(r.Platform) {
		return false, nil
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = m.now()
	}
	c.PlatformResults = append(c.PlatformResults, r)
	c.UpdatedAt = m.now()
	return true, nil
}

func (m *Memory) InsertAudit(_ context.Context, e campaign.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}
	m.appendAudit(e)
	return nil
}

func (m *Memory) ListAudit(_ context.Context, id string) ([]campaign.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []campaign.AuditEntry
	for _, e := range m.audit {
		if e.CampaignID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) appendAudit(e campaign.AuditEntry) {
	e.ID = int64(len(m.audit) + 1)
	m.audit = append(m.audit, e)
}

// clone deep-copies c so callers never share state with the store.
func clone(c *campaign.Campaign) *campaign.Campaign {
	b, err := json.Marshal(c)
	if err != nil {
		panic(err)
	}
	var out campaign.Campaign
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	if out.PlatformResults == nil {
		out.PlatformResults = []campaign.PlatformResult{}
	}
	return &out
}

func cloneGenerated(g *campaign.GeneratedContent) *campaign.GeneratedContent {
	out := *g
	out.Keywords = append([]string(nil), g.Keywords...)
	out.MediaRefs = append([]string(nil), g.MediaRefs...)
	return &out
}
