package models

import "time"

// Webhook is a registered capture path and, optionally, the URL its traffic is
// relayed to.
type Webhook struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	TargetURL    string    `json:"targetUrl"`
	PreviewField *string   `json:"previewField"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	// Only populated by list queries.
	RequestCount *int64 `json:"requestCount,omitempty"`
}

// RelayTarget returns the URL inbound traffic should be forwarded to, or false
// when the webhook only collects.
func (w *Webhook) RelayTarget() (string, bool) {
	if w == nil || !w.Active || w.TargetURL == "" {
		return "", false
	}
	return w.TargetURL, true
}
