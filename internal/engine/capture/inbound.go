package capture

import (
	"io"
	"net"
	"net/http"
	"strings"

	"hookrelay/internal/engine/relay"
	"hookrelay/internal/platform/models"
)

// Inbound is a normalized inbound request. Header names are lower-cased.
type Inbound struct {
	Method    string
	URL       string
	Headers   models.Values
	Body      []byte
	Query     models.Values
	IPAddress string
	UserAgent string

	// Truncated is set when the body exceeded the capture ceiling.
	Truncated bool
}

// NewInbound reads r into an Inbound, keeping at most maxBody bytes of body.
// A read error is returned together with whatever was read before it.
func NewInbound(r *http.Request, maxBody int64) (*Inbound, error) {
	in := &Inbound{
		Method:    r.Method,
		URL:       r.URL.RequestURI(),
		Headers:   make(models.Values, len(r.Header)+1),
		Query:     models.Values(r.URL.Query()),
		IPAddress: clientIP(r.RemoteAddr),
		UserAgent: r.UserAgent(),
	}

	for k, vs := range r.Header {
		key := strings.ToLower(k)
		in.Headers[key] = append(in.Headers[key], vs...)
	}
	if r.Host != "" {
		in.Headers["host"] = []string{r.Host}
	}

	if r.Body == nil {
		return in, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if int64(len(body)) > maxBody {
		body = body[:maxBody]
		in.Truncated = true
	}
	in.Body = body
	return in, err
}

func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// Outbound is the relay input for this request.
func (in *Inbound) Outbound() relay.Request {
	return relay.Request{
		Method:  in.Method,
		URL:     in.URL,
		Headers: in.Headers,
		Body:    in.Body,
		Query:   in.Query,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
