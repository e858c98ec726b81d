package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebhookNotifier sends alerts via webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookNotifier constructs a notifier.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify sends an alert to webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, msg AlertMessage) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	content := formatAlertMessage(msg)
	payload := webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: content},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.New("webhook notifier: non-2xx")
	}
	return nil
}

func formatAlertMessage(msg AlertMessage) string {
	var b strings.Builder
	b.WriteString("[Payroll Alert]\n")
	if msg.FileID != "" {
		fmt.Fprintf(&b, "File: %s\n", msg.FileID)
	}
	if msg.BranchID != "" {
		fmt.Fprintf(&b, "Branch: %s\n", msg.BranchID)
	}
	if msg.OrderID != "" {
		fmt.Fprintf(&b, "Order: %s\n", msg.OrderID)
	}
	if msg.Date != "" {
		fmt.Fprintf(&b, "Date: %s\n", msg.Date)
	}
	if msg.Failed > 0 {
		fmt.Fprintf(&b, "Failed: %d\n", msg.Failed)
	}
	if msg.Skipped > 0 {
		fmt.Fprintf(&b, "Skipped: %d\n", msg.Skipped)
	}
	if msg.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", msg.Reason)
	}
	if len(msg.Meta) > 0 {
		if raw, err := json.Marshal(msg.Meta); err == nil {
			fmt.Fprintf(&b, "Meta: %s\n", string(raw))
		}
	}
	return strings.TrimSpace(b.String())
}
