package models

import "time"

const RelayStatusError = "error"

// WebhookRequest is one captured inbound request. Headers and QueryParams hold
// the JSON encoding of a Values map.
type WebhookRequest struct {
	ID            string    `json:"id"`
	WebhookID     string    `json:"webhookId"`
	Method        string    `json:"method"`
	URL           string    `json:"url"`
	Headers       string    `json:"headers"`
	Body          *string   `json:"body"`
	QueryParams   string    `json:"queryParams"`
	Timestamp     time.Time `json:"timestamp"`
	IPAddress     *string   `json:"ipAddress"`
	UserAgent     *string   `json:"userAgent"`
	RelayStatus   *string   `json:"relayStatus"`
	RelayResponse *string   `json:"relayResponse"`
}
