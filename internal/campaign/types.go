package campaign

import "time"

type Platform string

const (
	PlatformTrafficSource Platform = "traffic_source"
	PlatformMeta          Platform = "meta"
	PlatformTikTok        Platform = "tiktok"
)

func ParsePlatform(s string) (Platform, bool) {
	switch p := Platform(s); p {
	case PlatformTrafficSource, PlatformMeta, PlatformTikTok:
		return p, true
	}
	return "", false
}

type LaunchReq struct {
	Name      string           `json:"name"      binding:"required"`
	Platforms []PlatformSpec   `json:"platforms" binding:"required,min=1,dive"`
	Content   ContentParams    `json:"content"`
	Existing  *ExistingContent `json:"existing_content,omitempty"`
}

type LaunchResp struct {
	CampaignID      string           `json:"campaign_id"`
	Status          Status           `json:"status"`
	PlatformResults []PlatformResult `json:"platform_results"`
	AllSuccess      bool             `json:"all_success"`
	ErrorDetail     *ErrorDetail     `json:"error_detail,omitempty"`
}

type PlatformSpec struct {
	Platform     Platform          `json:"platform"      binding:"required,platform"`
	Budget       int64             `json:"budget"        binding:"required,gt=0"`
	Targeting    map[string]string `json:"targeting,omitempty"`
	CreativeRefs []string          `json:"creative_refs,omitempty"`
}

type ContentParams struct {
	Offer        string   `json:"offer"`
	Country      string   `json:"country"  binding:"omitempty,len=2"`
	Language     string   `json:"language"`
	KeywordHints []string `json:"keyword_hints,omitempty"`
	Tone         string   `json:"tone,omitempty"`
}

// ExistingContent lets a launch reuse an article that was approved outside
// this pipeline. Generated may also be supplied to skip AI generation.
type ExistingContent struct {
	ApprovedContentID string            `json:"approved_content_id"`
	TrackingLink      string            `json:"tracking_link"`
	Generated         *GeneratedContent `json:"generated,omitempty"`
}

type GeneratedContent struct {
	Headline    string   `json:"headline"`
	PrimaryText string   `json:"primary_text"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	MediaRefs   []string `json:"media_refs,omitempty"`
}

type PlatformResult struct {
	Platform           Platform  `json:"platform"`
	Success            bool      `json:"success"`
	ExternalCampaignID string    `json:"external_campaign_id,omitempty"`
	Error              string    `json:"error,omitempty"`
	RecordedAt         time.Time `json:"recorded_at"`
}

type ErrorDetail struct {
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type Campaign struct {
	ID                    string            `json:"id"`
	Name                  string            `json:"name"`
	Status                Status            `json:"status"`
	Platforms             []PlatformSpec    `json:"platforms"`
	Content               ContentParams     `json:"content"`
	ContentRequestID      string            `json:"content_request_id,omitempty"`
	ContentApprovedID     string            `json:"content_approved_id,omitempty"`
	DeliveryTrackingLink  *string           `json:"delivery_tracking_link,omitempty"`
	ContentPollAttempts   int               `json:"content_poll_attempts"`
	TrackingPollAttempts  int               `json:"tracking_poll_attempts"`
	TrackingPollStartedAt *time.Time        `json:"tracking_poll_started_at,omitempty"`
	GeneratedContent      *GeneratedContent `json:"generated_content,omitempty"`
	PlatformResults       []PlatformResult  `json:"platform_results"`
	ErrorDetail           *ErrorDetail      `json:"error_detail,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// HasResult reports whether an outcome for p is already recorded.
func (c *Campaign) HasResult(p Platform) bool {
	for _, r := range c.PlatformResults {
		if r.Platform == p {
			return true
		}
	}
	return false
}

func (c *Campaign) Spec(p Platform) (PlatformSpec, bool) {
	for _, s := range c.Platforms {
		if s.Platform == p {
			return s, true
		}
	}
	return PlatformSpec{}, false
}

func (c *Campaign) TrackingLink() string {
	if c.DeliveryTrackingLink == nil {
		return ""
	}
	return *c.DeliveryTrackingLink
}

// LaunchSummary is the outcome of one fan-out pass. Complete means every
// requested platform has a recorded result.
type LaunchSummary struct {
	Results    []PlatformResult
	AllSuccess bool
	Complete   bool
}

// Mutation carries the optional column updates applied together with a
// status transition. Nil fields are left untouched.
type Mutation struct {
	ContentRequestID  *string
	ContentApprovedID *string
	TrackingLink      *string
	ErrorDetail       *ErrorDetail
}

type AuditEntry struct {
	ID             int64     `json:"id"`
	CampaignID     string    `json:"campaign_id"`
	Event          string    `json:"event"`
	PreviousStatus Status    `json:"previous_status,omitempty"`
	NewStatus      Status    `json:"new_status,omitempty"`
	Message        string    `json:"message"`
	IsError        bool      `json:"is_error"`
	Timestamp      time.Time `json:"timestamp"`
}

type CampaignListItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Platforms int       `json:"platforms"`
	Launched  int       `json:"launched"`
	Failed    int       `json:"failed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
