package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/content"
	"github.com/Mutter0815/LaunchPro/internal/orchestrator"
	"github.com/Mutter0815/LaunchPro/internal/pipeline"
	"github.com/Mutter0815/LaunchPro/internal/platform"
	"github.com/Mutter0815/LaunchPro/internal/retry"
	"github.com/Mutter0815/LaunchPro/internal/store"
)

const validLink = "https://trk.example.com/c/abc123"

var errBroker = errors.New("broker unavailable")

type queued struct {
	del   campaign.Delivery
	delay time.Duration
}

type memQueue struct {
	mu       sync.Mutex
	items    []queued
	failNext int
}

func (q *memQueue) Enqueue(_ context.Context, msg campaign.TaskMessage, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failNext > 0 {
		q.failNext--
		return errBroker
	}
	q.items = append(q.items, queued{del: campaign.Delivery{Message: msg}, delay: delay})
	return nil
}

func (q *memQueue) push(d campaign.Delivery) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, queued{del: d})
}

func (q *memQueue) pop() (campaign.Delivery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return campaign.Delivery{}, false
	}
	it := q.items[0]
	q.items = q.items[1:]
	return it.del, true
}

func (q *memQueue) stages() []campaign.Stage {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []campaign.Stage
	for _, it := range q.items {
		out = append(out, it.del.Message.Stage)
	}
	return out
}

func (q *memQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// fakeSource scripts the traffic source by call number, starting at 1.
type fakeSource struct {
	mu          sync.Mutex
	statusCalls int
	linkCalls   int
	status      func(n int) (platform.ContentStatus, error)
	link        func(n int) (string, error)
}

func (f *fakeSource) SubmitContent(context.Context, platform.ContentRequest) (string, error) {
	return "req-1", nil
}

func (f *fakeSource) GetContentStatus(context.Context, string) (platform.ContentStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	n := f.statusCalls
	f.mu.Unlock()
	if f.status == nil {
		return platform.ContentStatus{State: platform.ContentPending}, nil
	}
	return f.status(n)
}

func (f *fakeSource) GetTrackingLink(context.Context, string) (string, error) {
	f.mu.Lock()
	f.linkCalls++
	n := f.linkCalls
	f.mu.Unlock()
	if f.link == nil {
		return "", nil
	}
	return f.link(n)
}

func (f *fakeSource) calls() (status, link int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.linkCalls
}

type fakeLauncher struct {
	mu    sync.Mutex
	calls int
	err   error
	id    string
}

func (l *fakeLauncher) Launch(context.Context, platform.LaunchRequest) (platform.LaunchResult, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if l.err != nil {
		return platform.LaunchResult{}, l.err
	}
	return platform.LaunchResult{ExternalCampaignID: l.id}, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type genFunc func(ctx context.Context, req content.Request) (campaign.GeneratedContent, error)

func (f genFunc) Generate(ctx context.Context, req content.Request) (campaign.GeneratedContent, error) {
	return f(ctx, req)
}

var noWait = retry.Policy{MaxAttempts: 3, InitialDelay: 0, Multiplier: 2}

type harness struct {
	t         *testing.T
	store     *store.Memory
	source    *fakeSource
	src       platform.ContentSource
	queue     *memQueue
	launchers map[campaign.Platform]*fakeLauncher
	stages    *pipeline.Stages
	disp      *pipeline.Dispatcher
	gen       content.Generator
	opts      pipeline.Options
}

type option func(*harness)

func withGenerator(g content.Generator) option {
	return func(h *harness) { h.gen = g }
}

// withSource replaces the scripted source, e.g. with a real HTTP adapter.
func withSource(src platform.ContentSource) option {
	return func(h *harness) { h.src = src }
}

func withOptions(f func(*pipeline.Options)) option {
	return func(h *harness) { f(&h.opts) }
}

func withLauncherError(p campaign.Platform, err error) option {
	return func(h *harness) { h.launchers[p].err = err }
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		store:  store.NewMemory(),
		source: &fakeSource{},
		queue:  &memQueue{},
		launchers: map[campaign.Platform]*fakeLauncher{
			campaign.PlatformTrafficSource: {id: "ts-1"},
			campaign.PlatformMeta:          {id: "meta-1"},
			campaign.PlatformTikTok:        {id: "tt-1"},
		},
	}
	h.gen = content.Template{}
	h.src = h.source
	h.opts = pipeline.Options{
		TrackingPollMaxAttempts: 20,
		TrackingPollDelay:       30 * time.Second,
		ContentPollMaxAttempts:  30,
		ContentPollDelay:        time.Minute,
		ProcessBudget:           time.Minute,
		SourceRetry:             noWait,
		GenerateRetry:           noWait,
	}
	for _, o := range opts {
		o(h)
	}

	reg := platform.NewRegistry()
	for p, l := range h.launchers {
		reg.Register(p, l, noWait)
	}
	fo := orchestrator.NewFanOut(h.store, reg, 3, time.Second)

	h.stages = pipeline.New(h.store, h.src, h.gen, fo, h.queue, h.opts)
	h.disp = pipeline.NewDispatcher(h.stages, 3)
	return h
}

var allPlatforms = []campaign.Platform{campaign.PlatformTrafficSource, campaign.PlatformMeta, campaign.PlatformTikTok}

// seed creates a campaign and walks it to status along the pipeline graph.
func (h *harness) seed(status campaign.Status, platforms ...campaign.Platform) *campaign.Campaign {
	h.t.Helper()
	ctx := context.Background()
	if len(platforms) == 0 {
		platforms = allPlatforms
	}
	c := &campaign.Campaign{
		ID:      "c-" + string(status),
		Name:    "spring sale",
		Status:  campaign.StatusDraft,
		Content: campaign.ContentParams{Offer: "running shoes", Country: "US", Language: "en"},
	}
	for _, p := range platforms {
		c.Platforms = append(c.Platforms, campaign.PlatformSpec{Platform: p, Budget: 1000})
	}
	require.NoError(h.t, h.store.CreateCampaign(ctx, c))

	reqID, approvedID := "req-1", "art-1"
	path := []struct {
		to campaign.Status
		m  campaign.Mutation
	}{
		{campaign.StatusPendingContentApproval, campaign.Mutation{ContentRequestID: &reqID}},
		{campaign.StatusContentApproved, campaign.Mutation{ContentApprovedID: &approvedID}},
		{campaign.StatusAwaitingTrackingLink, campaign.Mutation{}},
		{campaign.StatusGeneratingContent, campaign.Mutation{TrackingLink: ptr(validLink)}},
		{campaign.StatusLaunching, campaign.Mutation{}},
	}
	cur := campaign.StatusDraft
	for _, step := range path {
		if cur == status {
			break
		}
		ok, err := h.store.Transition(ctx, c.ID, cur, step.to, step.m)
		require.NoError(h.t, err)
		require.True(h.t, ok)
		require.NoError(h.t, h.store.InsertAudit(ctx, campaign.AuditEntry{
			CampaignID: c.ID, Event: "status_changed", PreviousStatus: cur, NewStatus: step.to,
		}))
		cur = step.to
	}
	require.Equal(h.t, status, cur, "seed cannot reach %s", status)
	return h.get(c.ID)
}

func (h *harness) get(id string) *campaign.Campaign {
	h.t.Helper()
	c, err := h.store.GetCampaign(context.Background(), id)
	require.NoError(h.t, err)
	return c
}

func (h *harness) audit(id string) []campaign.AuditEntry {
	h.t.Helper()
	entries, err := h.store.ListAudit(context.Background(), id)
	require.NoError(h.t, err)
	return entries
}

// drain delivers queued messages until the queue is empty, re-queueing failed
// deliveries with an incremented retry count like the worker does.
func (h *harness) drain(limit int) []pipeline.Result {
	h.t.Helper()
	var out []pipeline.Result
	for i := 0; i < limit; i++ {
		d, ok := h.queue.pop()
		if !ok {
			return out
		}
		res, err := h.disp.Handle(context.Background(), d)
		if err != nil {
			d.RetryCount++
			h.queue.push(d)
			continue
		}
		out = append(out, res)
	}
	h.t.Fatalf("queue not drained after %d deliveries", limit)
	return out
}

func ptr[T any](v T) *T { return &v }
