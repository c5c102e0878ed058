package relay

import (
	"encoding/json"
	"strconv"
	"strings"

	"hookrelay/internal/platform/models"
)

// Request is the single input shape of the dispatcher, built either from a
// live inbound request or from a stored capture being resent.
type Request struct {
	Method  string
	URL     string
	Headers models.Values
	Body    []byte
	Query   models.Values
}

// Result is the outcome of one relay. A target that answered with any status
// is a success; Error is set only when no usable response came back.
type Result struct {
	StatusCode int
	Data       interface{}
	Error      string
}

func (r Result) OK() bool {
	return r.Error == ""
}

// ReportedStatus is the status recorded for a failed relay: whatever the target
// sent, or 500 when it never answered.
func (r Result) ReportedStatus() int {
	if r.StatusCode == 0 {
		return 500
	}
	return r.StatusCode
}

// RelayStatus is the stored form of the outcome: the numeric status or "error".
func (r Result) RelayStatus() string {
	if !r.OK() {
		return models.RelayStatusError
	}
	return strconv.Itoa(r.StatusCode)
}

type successRecord struct {
	Status int         `json:"status"`
	Data   interface{} `json:"data"`
}

type failureRecord struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// RelayResponse is the stored JSON document for the outcome.
func (r Result) RelayResponse() string {
	var v interface{}
	if r.OK() {
		v = successRecord{Status: r.StatusCode, Data: r.Data}
	} else {
		v = failureRecord{Error: r.Error, Status: r.ReportedStatus()}
	}

	b, err := json.Marshal(v)
	if err != nil {
		// Data is either a string or already valid JSON, so this only fires on a
		// broken json.RawMessage.
		b, _ = json.Marshal(failureRecord{Error: err.Error(), Status: r.ReportedStatus()})
	}
	return string(b)
}

var hopHeaders = map[string]bool{
	"host":           true,
	"connection":     true,
	"content-length": true,
}

// SanitizeHeaders returns a copy of h without the connection-specific headers
// that must not be forwarded. Matching is case-insensitive.
func SanitizeHeaders(h models.Values) models.Values {
	out := make(models.Values, len(h))
	for k, vs := range h {
		if hopHeaders[strings.ToLower(k)] {
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// IsJSONObject reports whether body is a well-formed JSON object.
func IsJSONObject(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed))
}
