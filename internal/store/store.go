package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
)

type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store { return &Store{DB: db} }

func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateCampaign inserts c together with its campaign_created audit row.
func (s *Store) CreateCampaign(ctx context.Context, c *campaign.Campaign) error {
	platforms, err := json.Marshal(c.Platforms)
	if err != nil {
		return fmt.Errorf("encode platforms: %w", err)
	}
	params, err := json.Marshal(c.Content)
	if err != nil {
		return fmt.Errorf("encode content params: %w", err)
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
		INSERT INTO campaigns (id, name, status, platforms, content_params)
		VALUES ($1,$2,$3,$4,$5) RETURNING created_at, updated_at`,
			c.ID, c.Name, c.Status, string(platforms), string(params)).Scan(&c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO campaign_audit (campaign_id, event, previous_status, new_status, message, is_error)
		VALUES ($1,$2,NULL,$3,$4,FALSE)`,
			c.ID, "campaign_created", c.Status, c.Name)
		return err
	})
}

const campaignColumns = `id, name, status, platforms, content_params, content_request_id, content_approved_id,
		delivery_tracking_link, content_poll_attempts, tracking_poll_attempts, tracking_poll_started_at,
		generated_content, error_detail, created_at, updated_at`

func scanCampaign(row interface{ Scan(dest ...any) error }) (*campaign.Campaign, error) {
	var (
		c           campaign.Campaign
		status      string
		platforms   []byte
		params      []byte
		requestID   sql.NullString
		approvedID  sql.NullString
		link        sql.NullString
		pollStarted sql.NullTime
		generated   []byte
		errDetail   []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &status, &platforms, &params, &requestID, &approvedID,
		&link, &c.ContentPollAttempts, &c.TrackingPollAttempts, &pollStarted,
		&generated, &errDetail, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = campaign.Status(status)
	c.ContentRequestID = requestID.String
	c.ContentApprovedID = approvedID.String
	if link.Valid {
		v := link.String
		c.DeliveryTrackingLink = &v
	}
	if pollStarted.Valid {
		v := pollStarted.Time
		c.TrackingPollStartedAt = &v
	}
	if err := json.Unmarshal(platforms, &c.Platforms); err != nil {
		return nil, fmt.Errorf("decode platforms: %w", err)
	}
	if err := json.Unmarshal(params, &c.Content); err != nil {
		return nil, fmt.Errorf("decode content params: %w", err)
	}
	if len(generated) > 0 {
		c.GeneratedContent = &campaign.GeneratedContent{}
		if err := json.Unmarshal(generated, c.GeneratedContent); err != nil {
			return nil, fmt.Errorf("decode generated content: %w", err)
		}
	}
	if len(errDetail) > 0 {
		c.ErrorDetail = &campaign.ErrorDetail{}
		if err := json.Unmarshal(errDetail, c.ErrorDetail); err != nil {
			return nil, fmt.Errorf("decode error detail: %w", err)
		}
	}
	return &c, nil
}

func (s *Store) GetCampaign(ctx context.Context, id string) (*campaign.Campaign, error) {
	c, err := scanCampaign(s.DB.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.NewNotFound(id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT platform, success, external_campaign_id, error, recorded_at
		FROM platform_results
		WHERE campaign_id = $1
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	c.PlatformResults = []campaign.PlatformResult{}
	for rows.Next() {
		var (
			r      campaign.PlatformResult
			p      string
			extID  sql.NullString
			errMsg sql.NullString
		)
		if err := rows.Scan(&p, &r.Success, &extID, &errMsg, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.Platform = campaign.Platform(p)
		r.ExternalCampaignID = extID.String
		r.Error = errMsg.String
		c.PlatformResults = append(c.PlatformResults, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) ListCampaigns(ctx context.Context, status campaign.Status, limit, offset int) ([]campaign.CampaignListItem, error) {
	if limit <= 0 || limit > 1000 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT c.id, c.name, c.status, jsonb_array_length(c.platforms),
		       COUNT(r.seq) FILTER (WHERE r.success)     AS launched,
		       COUNT(r.seq) FILTER (WHERE NOT r.success) AS failed,
		       c.created_at, c.updated_at
		FROM campaigns c
		LEFT JOIN platform_results r ON r.campaign_id = c.id
		WHERE ($1 = '' OR c.status = $1)
		GROUP BY c.id
		ORDER BY c.created_at DESC
		LIMIT $2 OFFSET $3
	`, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []campaign.CampaignListItem{}
	for rows.Next() {
		var it campaign.CampaignListItem
		var st string
		if err := rows.Scan(&it.ID, &it.Name, &st, &it.Platforms, &it.Launched, &it.Failed, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		it.Status = campaign.Status(st)
		out = append(out, it)
	}
	return out, rows.Err()
}

// Transition moves the campaign from -> to only if it is still in from.
// It reports false when another invocation got there first.
func (s *Store) Transition(ctx context.Context, id string, from, to campaign.Status, m campaign.Mutation) (bool, error) {
	if !campaign.CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", campaign.ErrIllegalTransition, from, to)
	}
	var errDetail any
	if m.ErrorDetail != nil {
		b, err := json.Marshal(m.ErrorDetail)
		if err != nil {
			return false, fmt.Errorf("encode error detail: %w", err)
		}
		errDetail = string(b)
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE campaigns
		   SET status=$3,
		       content_request_id=COALESCE($4, content_request_id),
		       content_approved_id=COALESCE($5, content_approved_id),
		       delivery_tracking_link=COALESCE($6, delivery_tracking_link),
		       error_detail=COALESCE($7::jsonb, error_detail),
		       updated_at=NOW()
		 WHERE id=$1 AND status=$2
	`, id, from, to, nullableString(m.ContentRequestID), nullableString(m.ContentApprovedID),
		nullableString(m.TrackingLink), errDetail)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// RecordContentPoll counts one approval poll, guarded by the attempt the
// caller observed.
func (s *Store) RecordContentPoll(ctx context.Context, id string, expected int) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE campaigns
		   SET content_poll_attempts = content_poll_attempts + 1, updated_at=NOW()
		 WHERE id=$1 AND status=$2 AND content_poll_attempts=$3
	`, id, campaign.StatusPendingContentApproval, expected)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

func (s *Store) RecordTrackingPoll(ctx context.Context, id string, expected int) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE campaigns
		   SET tracking_poll_attempts = tracking_poll_attempts + 1,
		       tracking_poll_started_at = COALESCE(tracking_poll_started_at, NOW()),
		       updated_at=NOW()
		 WHERE id=$1 AND status=$2 AND tracking_poll_attempts=$3
	`, id, campaign.StatusAwaitingTrackingLink, expected)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// SaveGeneratedContent writes content once; later calls report false.
func (s *Store) SaveGeneratedContent(ctx context.Context, id string, gc campaign.GeneratedContent) (bool, error) {
	b, err := json.Marshal(gc)
	if err != nil {
		return false, fmt.Errorf("encode generated content: %w", err)
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE campaigns SET generated_content=$2::jsonb, updated_at=NOW()
		 WHERE id=$1 AND generated_content IS NULL
	`, id, string(b))
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// ClaimPlatform takes the launch slot for (id, p). A claim older than
// staleBefore is taken over unless a result was already recorded.
func (s *Store) ClaimPlatform(ctx context.Context, id string, p campaign.Platform, token string, staleBefore time.Time) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO platform_launch_claims (campaign_id, platform, token, claimed_at)
		VALUES ($1,$2,$3,NOW())
		ON CONFLICT (campaign_id, platform) DO UPDATE
		   SET token=EXCLUDED.token, claimed_at=EXCLUDED.claimed_at
		 WHERE platform_launch_claims.claimed_at < $4
		   AND NOT EXISTS (SELECT 1 FROM platform_results r WHERE r.campaign_id=$1 AND r.platform=$2)
	`, id, p, token, staleBefore)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// AppendPlatformResult records r unless (id, r.Platform) already has one.
func (s *Store) AppendPlatformResult(ctx context.Context, id string, r campaign.PlatformResult) (bool, error) {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO platform_results (campaign_id, platform, success, external_campaign_id, error, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (campaign_id, platform) DO NOTHING
	`, id, r.Platform, r.Success, nullableString(&r.ExternalCampaignID), nullableString(&r.Error), r.RecordedAt)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

func (s *Store) InsertAudit(ctx context.Context, e campaign.AuditEntry) error {
	prev, next := string(e.PreviousStatus), string(e.NewStatus)
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO campaign_audit (campaign_id, event, previous_status, new_status, message, is_error, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, e.CampaignID, e.Event, nullableString(&prev), nullableString(&next), e.Message, e.IsError, e.Timestamp)
	return err
}

func (s *Store) ListAudit(ctx context.Context, id string) ([]campaign.AuditEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, campaign_id, event, previous_status, new_status, message, is_error, created_at
		FROM campaign_audit
		WHERE campaign_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []campaign.AuditEntry
	for rows.Next() {
		var (
			e          campaign.AuditEntry
			prev, next sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.Event, &prev, &next, &e.Message, &e.IsError, &e.Timestamp); err != nil {
			return nil, err
		}
		e.PreviousStatus = campaign.Status(prev.String)
		e.NewStatus = campaign.Status(next.String)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableString(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
