package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/pkg/logx"
)

const (
	EventCampaignCreated   = "campaign_created"
	EventStatusChanged     = "status_changed"
	EventContentSubmitted  = "content_submitted"
	EventPollAttempt       = "poll_attempt"
	EventContentGenerated  = "content_generated"
	EventPlatformLaunched  = "platform_launched"
	EventPlatformFailed    = "platform_launch_failed"
	EventPipelineCompleted = "pipeline_completed"
	EventStageError        = "stage_error"
	EventStageSkipped      = "stage_skipped"
)

type Sink interface {
	InsertAudit(ctx context.Context, e campaign.AuditEntry) error
}

// Trail appends audit entries. A failed write is logged and never fails the
// caller's stage.
type Trail struct {
	Sink Sink
	now  func() time.Time
}

func NewTrail(s Sink) *Trail {
	return &Trail{Sink: s, now: func() time.Time { return time.Now().UTC() }}
}

func (t *Trail) Record(ctx context.Context, e campaign.AuditEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = t.now()
	}
	log := logx.Campaign(e.CampaignID)
	if e.IsError {
		log.Warnw("audit", "event", e.Event, "prev", e.PreviousStatus, "next", e.NewStatus, "message", e.Message)
	} else {
		log.Infow("audit", "event", e.Event, "prev", e.PreviousStatus, "next", e.NewStatus, "message", e.Message)
	}
	if t.Sink == nil {
		return
	}
	if err := t.Sink.InsertAudit(ctx, e); err != nil {
		log.Errorw("audit_write_failed", "event", e.Event, "error", err)
	}
}

func (t *Trail) Transition(ctx context.Context, id string, from, to campaign.Status, msg string) {
	if campaign.IsSkip(from, to) {
		logx.Campaign(id).Infow("status_skipped_ahead", "prev", from, "next", to)
	}
	t.Record(ctx, campaign.AuditEntry{
		CampaignID:     id,
		Event:          EventStatusChanged,
		PreviousStatus: from,
		NewStatus:      to,
		Message:        msg,
		IsError:        to == campaign.StatusFailed,
	})
}

func (t *Trail) Event(ctx context.Context, id, event, msg string) {
	t.Record(ctx, campaign.AuditEntry{CampaignID: id, Event: event, Message: msg})
}

func (t *Trail) Error(ctx context.Context, id, event, msg string) {
	t.Record(ctx, campaign.AuditEntry{CampaignID: id, Event: event, Message: msg, IsError: true})
}

// CheckMonotonic verifies that the status changes in entries follow the
// transition graph and chain onto each other.
func CheckMonotonic(entries []campaign.AuditEntry) error {
	var current campaign.Status
	for _, e := range entries {
		if e.NewStatus == "" {
			continue
		}
		if e.PreviousStatus == "" {
			if current != "" {
				return fmt.Errorf("entry %d: status %s set without previous status after %s", e.ID, e.NewStatus, current)
			}
			current = e.NewStatus
			continue
		}
		if current != "" && e.PreviousStatus != current {
			return fmt.Errorf("entry %d: previous status %s, expected %s", e.ID, e.PreviousStatus, current)
		}
		if !campaign.CanTransition(e.PreviousStatus, e.NewStatus) {
			return fmt.Errorf("entry %d: %w: %s -> %s", e.ID, campaign.ErrIllegalTransition, e.PreviousStatus, e.NewStatus)
		}
		current = e.NewStatus
	}
	return nil
}

// Reached reports whether any entry moved the campaign into s.
func Reached(entries []campaign.AuditEntry, s campaign.Status) bool {
	for _, e := range entries {
		if e.NewStatus == s {
			return true
		}
	}
	return false
}
