package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/store"
)

func runCLI(t *testing.T, st Store, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(st)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in output:\n%s", needle, haystack)
	}
}

func seeded(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	c := &campaign.Campaign{
		ID:        "c1",
		Name:      "spring",
		Status:    campaign.StatusDraft,
		Platforms: []campaign.PlatformSpec{{Platform: campaign.PlatformMeta, Budget: 700}, {Platform: campaign.PlatformTikTok, Budget: 300}},
	}
	if err := st.CreateCampaign(ctx, c); err != nil {
		t.Fatal(err)
	}
	req := "req-1"
	if ok, err := st.Transition(ctx, c.ID, campaign.StatusDraft, campaign.StatusPendingContentApproval,
		campaign.Mutation{ContentRequestID: &req}); err != nil || !ok {
		t.Fatalf("transition: %v %v", ok, err)
	}
	if err := st.InsertAudit(ctx, campaign.AuditEntry{
		CampaignID: c.ID, Event: "status_changed",
		PreviousStatus: campaign.StatusDraft, NewStatus: campaign.StatusPendingContentApproval,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.AppendPlatformResult(ctx, c.ID, campaign.PlatformResult{
		Platform: campaign.PlatformMeta, Success: true, ExternalCampaignID: "meta-99",
	}); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestStatus(t *testing.T) {
	out, _, err := runCLI(t, seeded(t), "status", "c1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "PENDING_CONTENT_APPROVAL")
	requireContains(t, out, "meta-99")
	requireContains(t, out, "pending")
}

func TestStatus_JSON(t *testing.T) {
	out, _, err := runCLI(t, seeded(t), "--json", "status", "c1")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	requireContains(t, out, `"campaign_id": "c1"`)
	requireContains(t, out, `"all_success": false`)
}

func TestStatus_NotFound(t *testing.T) {
	_, _, err := runCLI(t, seeded(t), "status", "nope")
	if !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestList(t *testing.T) {
	st := seeded(t)
	out, _, err := runCLI(t, st, "list", "--status", "pending_content_approval")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "spring")
	requireContains(t, out, "1/2")

	out, _, err = runCLI(t, st, "list", "--status", "ACTIVE")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Contains(out, "spring") {
		t.Fatalf("filter ignored:\n%s", out)
	}

	if _, _, err := runCLI(t, st, "list", "--status", "PAUSED"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestAuditCheck(t *testing.T) {
	st := seeded(t)
	out, errOut, err := runCLI(t, st, "audit", "c1", "--check")
	if err != nil {
		t.Fatalf("audit --check: %v", err)
	}
	requireContains(t, out, "campaign_created")
	requireContains(t, out, "DRAFT -> PENDING_CONTENT_APPROVAL")
	requireContains(t, errOut, "audit trail ok")

	// A trail that jumps back in the graph must fail the check.
	if err := st.InsertAudit(context.Background(), campaign.AuditEntry{
		CampaignID: "c1", Event: "status_changed",
		PreviousStatus: campaign.StatusPendingContentApproval, NewStatus: campaign.StatusDraft,
	}); err != nil {
		t.Fatal(err)
	}
	_, _, err = runCLI(t, st, "audit", "c1", "--check")
	if !errors.Is(err, ErrAuditViolation) {
		t.Fatalf("expected audit violation, got %v", err)
	}
}

func TestMigrate_UnsupportedStore(t *testing.T) {
	_, _, err := runCLI(t, store.NewMemory(), "migrate")
	if err == nil || !strings.Contains(err.Error(), "does not support migrations") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestArgsValidated(t *testing.T) {
	if _, _, err := runCLI(t, store.NewMemory(), "status"); err == nil {
		t.Fatal("expected error without campaign id")
	}
}
