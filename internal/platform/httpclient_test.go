package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
)

func TestClientDo_ClassifiesStatus(t *testing.T) {
	cases := []struct {
		code      int
		body      string
		retryable bool
		msg       string
	}{
		{http.StatusTooManyRequests, `{"error":"slow down"}`, true, "slow down"},
		{http.StatusBadGateway, ``, true, "Bad Gateway"},
		{http.StatusBadRequest, `{"message":"budget too low"}`, false, "budget too low"},
		{http.StatusUnauthorized, `nope`, false, "nope"},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
			_, _ = w.Write([]byte(tc.body))
		}))
		c := NewClient(campaign.PlatformMeta, srv.URL, "k", time.Second)
		err := c.Do(context.Background(), "launch", http.MethodPost, "/x", nil, map[string]string{"a": "b"}, nil)
		srv.Close()

		var pe *Error
		if !errors.As(err, &pe) {
			t.Fatalf("code %d: want *Error, got %v", tc.code, err)
		}
		if pe.StatusCode != tc.code || pe.Retryable != tc.retryable || pe.Err.Error() != tc.msg {
			t.Fatalf("code %d: got %+v (%v)", tc.code, pe, pe.Err)
		}
		if IsRetryable(err) != tc.retryable {
			t.Fatalf("code %d: IsRetryable mismatch", tc.code)
		}
	}
}

func TestClientDo_SendsAuthAndHeaders(t *testing.T) {
	var gotAuth, gotKey, gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		gotCT = r.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`{"id":"ext-1"}`))
	}))
	defer srv.Close()

	c := NewClient(campaign.PlatformTikTok, srv.URL+"/", "secret", time.Second)
	var out struct {
		ID string `json:"id"`
	}
	h := http.Header{}
	h.Set("Idempotency-Key", "c1:tiktok")
	if err := c.Do(context.Background(), "launch", http.MethodPost, "/campaigns", h, map[string]int{"budget": 10}, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID != "ext-1" || gotAuth != "Bearer secret" || gotKey != "c1:tiktok" || gotCT != "application/json" {
		t.Fatalf("out=%+v auth=%q key=%q ct=%q", out, gotAuth, gotKey, gotCT)
	}
}

func TestClientDo_MalformedBodyIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tracking_link":`))
	}))
	defer srv.Close()

	c := NewClient(campaign.PlatformTrafficSource, srv.URL, "", time.Second)
	var out map[string]string
	err := c.Do(context.Background(), "tracking", http.MethodGet, "/t", nil, nil, &out)
	if !IsRetryable(err) {
		t.Fatalf("want retryable, got %v", err)
	}
}

func TestIsRetryable_Timeouts(t *testing.T) {
	if !IsRetryable(context.DeadlineExceeded) {
		t.Fatal("deadline exceeded should retry")
	}
	if IsRetryable(errors.New("boom")) {
		t.Fatal("plain errors are fatal")
	}
	if IsRetryable(nil) {
		t.Fatal("nil is not retryable")
	}
}

func TestClientDo_CancelIsNotARejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	c := NewClient(campaign.PlatformTrafficSource, srv.URL, "", 5*time.Second)
	err := c.Do(ctx, "tracking_link", http.MethodGet, "/t", nil, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("cancellation must not classify as fatal: %v", err)
	}
}
