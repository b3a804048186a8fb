package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/brightpath/email-tracking/internal/config"
	"github.com/brightpath/email-tracking/internal/pkg/httpretry"
)

// SparkPostTransport sends through the SparkPost transmissions API.
// Provider-side open and click tracking is disabled; the tracking rewrites
// are already baked into the HTML before it reaches the transport.
type SparkPostTransport struct {
	apiKey  string
	baseURL string
	client  httpretry.Doer
}

// NewSparkPostTransport creates a SparkPost transport. An empty base URL
// means the public API endpoint. Transient API failures (429, 5xx) are
// retried with backoff before the queue-level retry kicks in.
func NewSparkPostTransport(cfg config.SparkPostConfig) *SparkPostTransport {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.sparkpost.com/api/v1"
	}
	return &SparkPostTransport{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  httpretry.New(&http.Client{Timeout: sparkpostTimeout(cfg)}, 2),
	}
}

func sparkpostTimeout(cfg config.SparkPostConfig) time.Duration {
	if d := cfg.Timeout(); d > 0 {
		return d
	}
	return 30 * time.Second
}

func (t *SparkPostTransport) Name() string { return "sparkpost" }

// Send delivers a single email via a SparkPost transmission.
func (t *SparkPostTransport) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	transmission := map[string]interface{}{
		"recipients": []map[string]interface{}{
			{"address": map[string]string{"email": msg.To}},
		},
		"content": map[string]interface{}{
			"from": map[string]string{
				"email": msg.FromEmail,
				"name":  msg.FromName,
			},
			"subject": msg.Subject,
			"html":    msg.HTML,
			"text":    msg.Text,
		},
		"options": map[string]interface{}{
			"open_tracking":  false,
			"click_tracking": false,
		},
	}

	body, _ := json.Marshal(transmission)
	req, err := http.NewRequestWithContext(ctx, "POST", t.baseURL+"/transmissions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sparkpost api: %w", err)
	}
	defer resp.Body.Close()

	var spResp struct {
		Results struct {
			TotalAcceptedRecipients int    `json:"total_accepted_recipients"`
			ID                      string `json:"id"`
		} `json:"results"`
		Errors []struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"errors"`
	}
	json.NewDecoder(resp.Body).Decode(&spResp)

	if resp.StatusCode != http.StatusOK || len(spResp.Errors) > 0 {
		reason := fmt.Sprintf("sparkpost status %d", resp.StatusCode)
		if len(spResp.Errors) > 0 {
			reason = spResp.Errors[0].Message
		}
		return &SendResult{Success: false, Reason: reason}, nil
	}

	return &SendResult{Success: true, MessageID: spResp.Results.ID}, nil
}
