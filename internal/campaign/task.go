package campaign

import "time"

type Stage string

const (
	StageCheckArticle    Stage = "check-article"
	StagePollTracking    Stage = "poll-tracking"
	StageProcessCampaign Stage = "process-campaign"
)

// Error detail stage labels.
const (
	FailureContentSubmission = "content_submission"
	FailureContentApproval   = "content_approval"
	FailureTrackingLink      = "tracking_link"
	FailureContentGeneration = "content_generation"
	FailurePlatformLaunch    = "platform_launch"
)

func ParseStage(s string) (Stage, bool) {
	switch st := Stage(s); st {
	case StageCheckArticle, StagePollTracking, StageProcessCampaign:
		return st, true
	}
	return "", false
}

// ExpectedStatus is the status a stage requires before it acts.
func (s Stage) ExpectedStatus() Status {
	switch s {
	case StageCheckArticle:
		return StatusPendingContentApproval
	case StagePollTracking:
		return StatusAwaitingTrackingLink
	case StageProcessCampaign:
		return StatusGeneratingContent
	}
	return ""
}

// FailureLabel is the ErrorDetail stage recorded when s gives up.
func (s Stage) FailureLabel() string {
	switch s {
	case StageCheckArticle:
		return FailureContentApproval
	case StagePollTracking:
		return FailureTrackingLink
	case StageProcessCampaign:
		return FailureContentGeneration
	}
	return string(s)
}

// TaskMessage is the queue payload for one stage invocation. Attempt is the
// poll sequence number the message was scheduled for.
type TaskMessage struct {
	CampaignID string `json:"campaign_id"`
	Stage      Stage  `json:"stage"`
	Attempt    int    `json:"attempt"`
}

// Delivery is a TaskMessage plus the metadata the queue attaches to it.
type Delivery struct {
	Message     TaskMessage
	RetryCount  int
	ScheduledAt time.Time
}
