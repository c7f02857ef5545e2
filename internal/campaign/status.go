package campaign

// Status is the single source of truth for where a campaign sits in the
// launch pipeline.
type Status string

const (
	StatusDraft                  Status = "DRAFT"
	StatusPendingContentApproval Status = "PENDING_CONTENT_APPROVAL"
	StatusContentApproved        Status = "CONTENT_APPROVED"
	StatusAwaitingTrackingLink   Status = "AWAITING_TRACKING_LINK"
	StatusGeneratingContent      Status = "GENERATING_CONTENT"
	StatusLaunching              Status = "LAUNCHING"
	StatusActive                 Status = "ACTIVE"
	StatusFailed                 Status = "FAILED"
)

var pipelineOrder = []Status{
	StatusDraft,
	StatusPendingContentApproval,
	StatusContentApproved,
	StatusAwaitingTrackingLink,
	StatusGeneratingContent,
	StatusLaunching,
	StatusActive,
}

var rank = func() map[Status]int {
	m := make(map[Status]int, len(pipelineOrder)+1)
	for i, s := range pipelineOrder {
		m[s] = i
	}
	m[StatusFailed] = len(pipelineOrder)
	return m
}()

type transition struct {
	from Status
	to   Status
}

var forwardTransitions = map[transition]struct{}{
	{StatusDraft, StatusPendingContentApproval}:           {},
	{StatusDraft, StatusGeneratingContent}:                {},
	{StatusPendingContentApproval, StatusContentApproved}: {},
	{StatusContentApproved, StatusAwaitingTrackingLink}:   {},
	{StatusContentApproved, StatusGeneratingContent}:      {},
	{StatusAwaitingTrackingLink, StatusGeneratingContent}: {},
	{StatusGeneratingContent, StatusLaunching}:            {},
	{StatusLaunching, StatusActive}:                       {},
}

// ParseStatus returns the status for s and whether it is known.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := rank[st]
	return st, ok
}

// Rank orders statuses along the pipeline. FAILED ranks last.
func Rank(s Status) int {
	if r, ok := rank[s]; ok {
		return r
	}
	return -1
}

func (s Status) Terminal() bool {
	return s == StatusActive || s == StatusFailed
}

// CanTransition reports whether from -> to is an edge of the pipeline graph.
// FAILED is reachable from every non-terminal status.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed {
		_, ok := rank[from]
		return ok
	}
	_, ok := forwardTransitions[transition{from, to}]
	return ok
}

// IsSkip reports whether from -> to bypasses intermediate statuses.
func IsSkip(from, to Status) bool {
	return to != StatusFailed && CanTransition(from, to) && Rank(to)-Rank(from) > 1
}
