package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
)

const maxErrorBody = 4 << 10

// Client is the JSON-over-HTTP transport shared by the platform adapters.
// Each adapter owns its own Client; nothing is cached globally.
type Client struct {
	Platform campaign.Platform
	BaseURL  string
	APIKey   string
	HTTP     *http.Client
	// Header is set on every request, e.g. Idempotency-Key.
	Header http.Header
}

func NewClient(p campaign.Platform, baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		Platform: p,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		APIKey:   apiKey,
		HTTP:     &http.Client{Timeout: timeout},
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Do sends in as JSON (when non-nil) and decodes the response into out.
// Non-2xx responses become *Error classified by status code.
func (c *Client) Do(ctx context.Context, op, method, path string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return Fatal(c.Platform, op, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return Fatal(c.Platform, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return Transient(c.Platform, op, cerr)
		}
		return Transient(c.Platform, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(raw))
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			if eb.Message != "" {
				msg = eb.Message
			} else if eb.Error != "" {
				msg = eb.Error
			}
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{
			Platform:   c.Platform,
			Op:         op,
			StatusCode: resp.StatusCode,
			Retryable:  RetryableStatus(resp.StatusCode),
			Err:        errors.New(msg),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// A 2xx with a garbled body is an upstream hiccup, not a rejection.
		return Transient(c.Platform, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
