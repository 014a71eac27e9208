package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Directory talks to the membership platform's internal API. It implements
// both Authorizer and MessageStore, so the gateway delegates every identity,
// membership, and persistence decision to the system of record.
type Directory struct {
	baseURL string
	secret  string
	client  *http.Client
	logger  *slog.Logger
}

// NewDirectory creates a Directory client. baseURL points at the platform's
// internal API root; secret authenticates this service to it.
func NewDirectory(baseURL, secret string, timeout time.Duration, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		baseURL: baseURL,
		secret:  secret,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Authenticate resolves a bearer token to a subject.
func (d *Directory) Authenticate(ctx context.Context, token string) (Subject, error) {
	var out struct {
		SubjectID string `json:"subject_id"`
		Role      string `json:"role"`
	}
	err := d.post(ctx, "/internal/auth/verify", map[string]string{"token": token}, &out)
	if err != nil {
		return Subject{}, fmt.Errorf("token verification failed: %w", err)
	}
	return Subject{ID: out.SubjectID, Role: out.Role}, nil
}

// CanView reports whether the subject may subscribe to a channel.
func (d *Directory) CanView(ctx context.Context, subject Subject, channelID string) (bool, error) {
	return d.check(ctx, "/internal/channels/"+url.PathEscape(channelID)+"/can-view", subject)
}

// CanPost reports whether the subject may post to a channel. Broadcast
// channels carry a per-subject admin flag on the platform side.
func (d *Directory) CanPost(ctx context.Context, subject Subject, channelID string) (bool, error) {
	return d.check(ctx, "/internal/channels/"+url.PathEscape(channelID)+"/can-post", subject)
}

// SaveMessage persists a message and returns the stored record.
func (d *Directory) SaveMessage(ctx context.Context, channelID, senderID, content string) (Message, error) {
	var out Message
	payload := map[string]string{
		"channel_id": channelID,
		"sender_id":  senderID,
		"content":    content,
	}
	if err := d.post(ctx, "/internal/messages", payload, &out); err != nil {
		return Message{}, fmt.Errorf("failed to persist message: %w", err)
	}
	return out, nil
}

func (d *Directory) check(ctx context.Context, path string, subject Subject) (bool, error) {
	var out struct {
		Allowed bool `json:"allowed"`
	}
	err := d.post(ctx, path, map[string]string{"subject_id": subject.ID, "role": subject.Role}, &out)
	if err != nil {
		return false, err
	}
	return out.Allowed, nil
}

func (d *Directory) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.secret)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("platform API returned %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
