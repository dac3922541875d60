package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Relay delivers one outbound SMS. The dedupe token lets the relay side drop
// resends of the same logical message; threadRef is the relay's conversation
// handle that inbound replies carry back.
type Relay interface {
	Send(ctx context.Context, to string, body string, dedupeToken string) (delivered bool, threadRef string, err error)
	ProviderID() string
}

type WebhookRelay struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookRelay(url string, token string) *WebhookRelay {
	return &WebhookRelay{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (r *WebhookRelay) ProviderID() string {
	return "sms-webhook"
}

func (r *WebhookRelay) Send(ctx context.Context, to string, body string, dedupeToken string) (bool, string, error) {
	if r.url == "" {
		return false, "", errors.New("sms relay url not configured")
	}
	payload := map[string]string{
		"to":           to,
		"body":         body,
		"dedupe_token": dedupeToken,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(raw))
	if err != nil {
		return false, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return false, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, "", errors.New("sms relay returned non-2xx")
	}
	var out struct {
		ThreadRef string `json:"thread_ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// Delivered but no usable thread ref; replies fall back to phone matching.
		return true, "", nil
	}
	return true, out.ThreadRef, nil
}

// NoopRelay accepts everything without sending. Local development only.
type NoopRelay struct{}

func NewNoopRelay() *NoopRelay {
	return &NoopRelay{}
}

func (r *NoopRelay) ProviderID() string {
	return "sms-noop"
}

func (r *NoopRelay) Send(_ context.Context, _ string, _ string, dedupeToken string) (bool, string, error) {
	return true, "noop:" + dedupeToken, nil
}
