package services

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Priority classifies outbound operator notifications.
type Priority string

const (
	PriorityNormal    Priority = "normal"
	PriorityHigh      Priority = "high"
	PriorityEmergency Priority = "emergency"
)

// NotificationPort is the outbound alerting boundary. Implementations must
// never panic or block the scheduler: a disabled or unreachable notifier
// returns false and the pipeline continues unaffected.
type NotificationPort interface {
	Send(message string, priority Priority) bool
}

// WebhookNotifier posts notifications to a configured webhook endpoint.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookNotifier creates a webhook-backed notifier. An empty URL yields
// a disabled notifier that silently returns false.
func NewWebhookNotifier(url string, enabled bool) *WebhookNotifier {
	return &WebhookNotifier{
		url:     url,
		enabled: enabled && url != "",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers a notification best-effort. Delivery failures are logged and
// swallowed so that a notification outage cannot take down orchestration.
func (n *WebhookNotifier) Send(message string, priority Priority) bool {
	if !n.enabled {
		log.Printf("Notifier disabled, dropping [%s] %s", priority, message)
		return false
	}

	payload, err := json.Marshal(map[string]interface{}{
		"text":     message,
		"priority": string(priority),
		"sent_at":  time.Now().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("Error marshaling notification: %v", err)
		return false
	}

	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Printf("Notification delivery failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("Notification endpoint returned %d", resp.StatusCode)
		return false
	}
	return true
}
