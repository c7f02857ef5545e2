package trafficsource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/platform"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(platform.NewClient(campaign.PlatformTrafficSource, srv.URL, "key", time.Second))
}

func TestSubmitContent(t *testing.T) {
	var got submitReq
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/content" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"request_id":"req-9"}`))
	})

	id, err := c.SubmitContent(context.Background(), platform.ContentRequest{
		CampaignID: "c1",
		Name:       "Spring",
		Params:     campaign.ContentParams{Offer: "loans", Country: "US", Language: "en"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != "req-9" || got.CampaignRef != "c1" || got.Offer != "loans" {
		t.Fatalf("id=%q got=%+v", id, got)
	}
}

func TestGetContentStatus_Normalizes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/content/req-9" {
			t.Errorf("path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"Approved","content_id":"art-1","tracking_link":" https://track.example.com/abc "}`))
	})
	st, err := c.GetContentStatus(context.Background(), "req-9")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != platform.ContentPublished || st.ApprovedID != "art-1" || st.TrackingLink != "https://track.example.com/abc" {
		t.Fatalf("st=%+v", st)
	}
}

func TestGetTrackingLink_NotFoundMeansNotReady(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	link, err := c.GetTrackingLink(context.Background(), "art-1")
	if err != nil || link != "" {
		t.Fatalf("link=%q err=%v", link, err)
	}
}

func TestLaunch_NumericID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Idempotency-Key") != "c1:traffic_source" {
			t.Errorf("idempotency key %q", r.Header.Get("Idempotency-Key"))
		}
		_, _ = w.Write([]byte(`{"campaign_id":12345}`))
	})
	res, err := c.Launch(context.Background(), platform.LaunchRequest{
		CampaignID:     "c1",
		IdempotencyKey: platform.IdempotencyKey("c1", campaign.PlatformTrafficSource),
		Spec:           campaign.PlatformSpec{Platform: campaign.PlatformTrafficSource, Budget: 100},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ExternalCampaignID != "12345" {
		t.Fatalf("id=%q", res.ExternalCampaignID)
	}
}

func TestNormalizeState(t *testing.T) {
	cases := map[string]platform.ContentState{
		"published": platform.ContentPublished,
		"REJECTED":  platform.ContentRejected,
		"in_review": platform.ContentInReview,
		"pending":   platform.ContentPending,
		"":          platform.ContentPending,
		"weird":     platform.ContentPending,
	}
	for in, want := range cases {
		if got := normalizeState(in); got != want {
			t.Errorf("normalizeState(%q)=%q want %q", in, got, want)
		}
	}
}
