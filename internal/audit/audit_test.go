package audit

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/pkg/logx"
)

type sinkFunc func(ctx context.Context, e campaign.AuditEntry) error

func (f sinkFunc) InsertAudit(ctx context.Context, e campaign.AuditEntry) error { return f(ctx, e) }

func TestRecord_SwallowsSinkError(t *testing.T) {
	called := 0
	tr := NewTrail(sinkFunc(func(context.Context, campaign.AuditEntry) error {
		called++
		return errors.New("db down")
	}))
	tr.Event(context.Background(), "c1", EventStageError, "x")
	if called != 1 {
		t.Fatalf("sink called %d times", called)
	}
}

func TestRecord_StampsTimestamp(t *testing.T) {
	var got campaign.AuditEntry
	tr := NewTrail(sinkFunc(func(_ context.Context, e campaign.AuditEntry) error {
		got = e
		return nil
	}))
	tr.Transition(context.Background(), "c1", campaign.StatusLaunching, campaign.StatusFailed, "boom")
	if got.Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}
	if !got.IsError {
		t.Fatal("transition to FAILED must be flagged as error")
	}
}

func chain(statuses ...campaign.Status) []campaign.AuditEntry {
	out := []campaign.AuditEntry{{ID: 1, Event: EventCampaignCreated, NewStatus: statuses[0]}}
	for i := 1; i < len(statuses); i++ {
		out = append(out, campaign.AuditEntry{
			ID:             int64(i + 1),
			Event:          EventStatusChanged,
			PreviousStatus: statuses[i-1],
			NewStatus:      statuses[i],
		})
	}
	return out
}

func TestCheckMonotonic(t *testing.T) {
	cases := []struct {
		name    string
		entries []campaign.AuditEntry
		ok      bool
	}{
		{"full path", chain(campaign.StatusDraft, campaign.StatusPendingContentApproval, campaign.StatusContentApproved,
			campaign.StatusAwaitingTrackingLink, campaign.StatusGeneratingContent, campaign.StatusLaunching, campaign.StatusActive), true},
		{"fast path", chain(campaign.StatusDraft, campaign.StatusPendingContentApproval, campaign.StatusContentApproved,
			campaign.StatusGeneratingContent, campaign.StatusLaunching, campaign.StatusActive), true},
		{"failed mid way", chain(campaign.StatusDraft, campaign.StatusPendingContentApproval, campaign.StatusFailed), true},
		{"backwards", chain(campaign.StatusDraft, campaign.StatusPendingContentApproval, campaign.StatusDraft), false},
		{"out of terminal", chain(campaign.StatusDraft, campaign.StatusFailed, campaign.StatusPendingContentApproval), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckMonotonic(tc.entries)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected violation")
			}
		})
	}
}

func TestCheckMonotonic_BrokenChain(t *testing.T) {
	entries := []campaign.AuditEntry{
		{ID: 1, NewStatus: campaign.StatusDraft},
		{ID: 2, PreviousStatus: campaign.StatusContentApproved, NewStatus: campaign.StatusGeneratingContent},
	}
	if err := CheckMonotonic(entries); err == nil {
		t.Fatal("expected chain error")
	}
}

func TestReached(t *testing.T) {
	entries := chain(campaign.StatusDraft, campaign.StatusPendingContentApproval)
	if !Reached(entries, campaign.StatusPendingContentApproval) || Reached(entries, campaign.StatusActive) {
		t.Fatal("Reached mismatch")
	}
}

func TestTransition_LogsSkips(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	defer logx.SetForTest(zap.New(core).Sugar())()

	tr := NewTrail(nil)
	tr.Transition(context.Background(), "c1", campaign.StatusDraft, campaign.StatusPendingContentApproval, "")
	if n := logs.FilterMessage("status_skipped_ahead").Len(); n != 0 {
		t.Fatalf("adjacent transition logged as skip %d times", n)
	}
	tr.Transition(context.Background(), "c1", campaign.StatusContentApproved, campaign.StatusGeneratingContent, "fast path")
	if n := logs.FilterMessage("status_skipped_ahead").Len(); n != 1 {
		t.Fatalf("skip logged %d times", n)
	}
}
