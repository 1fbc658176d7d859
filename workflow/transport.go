package workflow

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/valyala/fasthttp"
)

// Call is one outbound remote workflow invocation.
type Call struct {
	Endpoint    string
	Action      string
	Username    string
	Password    string
	ContentType string
	Body        []byte
}

// Transport performs a one-way call. The response carries no contract;
// only transport failures are reported, and Send must not wait for the
// response.
type Transport interface {
	Send(ctx context.Context, call Call) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, call Call) error

// Send implements Transport.
func (f TransportFunc) Send(ctx context.Context, call Call) error {
	return f(ctx, call)
}

// Defaults for FastHTTPTransport.
const (
	DefaultAcceptWindow    = 250 * time.Millisecond
	DefaultResponseTimeout = 30 * time.Second
)

// FastHTTPTransport posts calls with fasthttp, authenticating preemptively
// with basic credentials instead of waiting for a challenge. Send waits at
// most the accept window for the exchange; the response is read and logged
// in the background.
type FastHTTPTransport struct {
	client          *fasthttp.Client
	logger          Logger
	acceptWindow    time.Duration
	responseTimeout time.Duration
}

// FastHTTPOption customizes a FastHTTPTransport.
type FastHTTPOption func(*FastHTTPTransport)

// WithAcceptWindow bounds how long Send waits for dial or write failures
// before reporting the call as accepted.
func WithAcceptWindow(d time.Duration) FastHTTPOption {
	return func(t *FastHTTPTransport) {
		if d > 0 {
			t.acceptWindow = d
		}
	}
}

// WithResponseTimeout bounds background exchanges whose context carries no deadline.
func WithResponseTimeout(d time.Duration) FastHTTPOption {
	return func(t *FastHTTPTransport) {
		if d > 0 {
			t.responseTimeout = d
		}
	}
}

// NewFastHTTPTransport returns a transport using client, or a default client when nil.
func NewFastHTTPTransport(client *fasthttp.Client, logger Logger, opts ...FastHTTPOption) *FastHTTPTransport {
	if client == nil {
		client = &fasthttp.Client{
			Name:                     "go-identity-workflow",
			NoDefaultUserAgentHeader: true,
		}
	}
	if logger == nil {
		logger = nopLogger{}
	}

	t := &FastHTTPTransport{
		client:          client,
		logger:          logger,
		acceptWindow:    DefaultAcceptWindow,
		responseTimeout: DefaultResponseTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Send implements Transport. Failures seen within the accept window, such
// as a refused dial, are returned. Past the window the call counts as
// accepted and its outcome is only logged.
func (t *FastHTTPTransport) Send(ctx context.Context, call Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	req.SetRequestURI(call.Endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType(call.ContentType)
	if call.Action != "" {
		req.Header.Set("SOAPAction", call.Action)
	}
	req.Header.Set(fasthttp.HeaderAuthorization, basicAuth(call.Username, call.Password))
	req.SetBody(call.Body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(t.responseTimeout)
	}

	done := make(chan error, 1)
	go t.exchange(req, call.Endpoint, deadline, done)

	window := time.NewTimer(t.acceptWindow)
	defer window.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		go t.logLate(call.Endpoint, done)
		return ctx.Err()
	case <-window.C:
		go t.logLate(call.Endpoint, done)
		return nil
	}
}

// exchange owns req and releases it.
func (t *FastHTTPTransport) exchange(req *fasthttp.Request, endpoint string, deadline time.Time, done chan<- error) {
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	err := t.client.DoDeadline(req, resp, deadline)
	if err == nil {
		if status := resp.StatusCode(); status >= fasthttp.StatusBadRequest {
			t.logger.Warn("remote workflow endpoint answered with error status",
				"endpoint", endpoint,
				"status", status,
			)
		}
	}
	done <- err
}

func (t *FastHTTPTransport) logLate(endpoint string, done <-chan error) {
	if err := <-done; err != nil {
		t.logger.Warn("accepted remote workflow call failed",
			"endpoint", endpoint,
			"error", err,
		)
	}
}

func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

