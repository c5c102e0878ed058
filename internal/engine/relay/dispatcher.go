package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"hookrelay/internal/pkg/metrics"
)

// DefaultTimeout bounds one outbound relay, connection through response body.
const DefaultTimeout = 10 * time.Second

const defaultMaxResponseBytes = 1 << 20

type Dispatcher struct {
	client           *http.Client
	timeout          time.Duration
	maxResponseBytes int64
}

type Option func(*Dispatcher)

func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.timeout = d }
}

func WithMaxResponseBytes(n int64) Option {
	return func(disp *Dispatcher) {
		if n > 0 {
			disp.maxResponseBytes = n
		}
	}
}

func WithTransport(rt http.RoundTripper) Option {
	return func(disp *Dispatcher) { disp.client.Transport = rt }
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:           &http.Client{},
		timeout:          DefaultTimeout,
		maxResponseBytes: defaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.client.Timeout = d.timeout
	return d
}

// Relay forwards req to target once and reports what happened. It never
// returns an error: transport failures come back as a failed Result.
func (d *Dispatcher) Relay(ctx context.Context, req Request, target string) Result {
	start := time.Now()
	res := d.do(ctx, req, target)
	metrics.RelayDuration.Observe(time.Since(start).Seconds())

	switch {
	case res.OK():
		metrics.RelaysTotal.WithLabelValues("success").Inc()
	case res.StatusCode == 0 && res.Error == d.timeoutMessage():
		metrics.RelaysTotal.WithLabelValues("timeout").Inc()
	default:
		metrics.RelaysTotal.WithLabelValues("failure").Inc()
	}

	log.Debug().
		Str("method", req.Method).
		Str("target", target).
		Int("status", res.StatusCode).
		Str("error", res.Error).
		Dur("duration", time.Since(start)).
		Msg("relay finished")
	return res
}

func (d *Dispatcher) do(ctx context.Context, req Request, target string) Result {
	dest, err := buildURL(target, req)
	if err != nil {
		return Result{Error: err.Error()}
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	out, err := http.NewRequestWithContext(ctx, method, dest, body)
	if err != nil {
		return Result{Error: err.Error()}
	}
	for k, vs := range SanitizeHeaders(req.Headers) {
		for _, v := range vs {
			out.Header.Add(k, v)
		}
	}
	if out.Header.Get("Content-Type") == "" && IsJSONObject(req.Body) {
		out.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(out)
	if err != nil {
		return Result{Error: d.describe(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, d.maxResponseBytes))
	if err != nil {
		return Result{StatusCode: resp.StatusCode, Error: d.describe(err)}
	}
	decoded := decodeBody(raw, resp.Header.Get("Content-Encoding"), d.maxResponseBytes)

	return Result{
		StatusCode: resp.StatusCode,
		Data:       parseData(decoded, resp.Header.Get("Content-Type")),
	}
}

// buildURL appends the captured query parameters to target, keeping any query
// the target already carries.
func buildURL(target string, req Request) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid target URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid target URL %q: unsupported scheme", target)
	}
	if len(req.Query) == 0 {
		return u.String(), nil
	}

	q := u.Query()
	for k, vs := range req.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d *Dispatcher) timeoutMessage() string {
	return fmt.Sprintf("timeout of %dms exceeded", d.timeout.Milliseconds())
}

func (d *Dispatcher) describe(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return d.timeoutMessage()
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}
