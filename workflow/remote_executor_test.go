package workflow_test

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteParams(endpoint string) map[string]any {
	return map[string]any{
		workflow.ParamEndpoint:      endpoint,
		workflow.ParamServiceAction: "urn:process",
		workflow.ParamAuthUser:      "admin",
		workflow.ParamAuthPassword:  []rune("s3cret"),
	}
}

type countingTransport struct {
	calls []workflow.Call
	err   error
}

func (c *countingTransport) Send(_ context.Context, call workflow.Call) error {
	c.calls = append(c.calls, call)
	return c.err
}

func TestRemoteExecutorMissingParameters(t *testing.T) {
	for _, key := range workflow.RequiredParameters {
		t.Run(key, func(t *testing.T) {
			transport := &countingTransport{}
			params := remoteParams("http://bpel.invalid/service")
			delete(params, key)

			executor := workflow.NewRemoteExecutor(params, workflow.WithTransport(transport))
			err := executor.Execute(context.Background(), workflow.NewRequest("ACCOUNT_LOCK", nil))
			require.Error(t, err)
			assert.True(t, isKind(err, workflow.ErrMissingExecutorParameter))
			assert.Empty(t, transport.calls)
		})
	}
}

func TestRemoteExecutorEmptyParameter(t *testing.T) {
	transport := &countingTransport{}
	params := remoteParams("http://bpel.invalid/service")
	params[workflow.ParamAuthPassword] = ""

	executor := workflow.NewRemoteExecutor(params, workflow.WithTransport(transport))
	err := executor.Execute(context.Background(), workflow.NewRequest("ACCOUNT_LOCK", nil))
	assert.True(t, isKind(err, workflow.ErrMissingExecutorParameter))
	assert.Empty(t, transport.calls)
}

func TestRemoteExecutorBuildsCall(t *testing.T) {
	transport := &countingTransport{}
	executor := workflow.NewRemoteExecutor(remoteParams("http://bpel.invalid/service"), workflow.WithTransport(transport))

	req := workflow.NewRequestWithID("req-1", "ACCOUNT_LOCK", map[string]any{"Username": "alice"})
	require.NoError(t, executor.Execute(context.Background(), req))
	require.Len(t, transport.calls, 1)

	call := transport.calls[0]
	assert.Equal(t, "http://bpel.invalid/service", call.Endpoint)
	assert.Equal(t, "urn:process", call.Action)
	assert.Equal(t, "admin", call.Username)
	assert.Equal(t, "s3cret", call.Password)
	assert.Equal(t, "application/xml", call.ContentType)

	expected, err := workflow.BuildPayload(req)
	require.NoError(t, err)
	assert.Equal(t, expected, call.Body)
}

func TestRemoteExecutorTransportFailure(t *testing.T) {
	transport := &countingTransport{err: errors.New("connection refused")}
	executor := workflow.NewRemoteExecutor(remoteParams("http://bpel.invalid/service"), workflow.WithTransport(transport))

	err := executor.Execute(context.Background(), workflow.NewRequestWithID("req-9", "ACCOUNT_LOCK", nil))
	require.Error(t, err)
	assert.True(t, isKind(err, workflow.ErrRemoteInvocationFailed))
}

func TestRemoteExecutorReinitialize(t *testing.T) {
	transport := &countingTransport{}
	executor := workflow.NewRemoteExecutor(nil, workflow.WithTransport(transport))

	err := executor.Execute(context.Background(), workflow.NewRequest("ACCOUNT_LOCK", nil))
	assert.True(t, isKind(err, workflow.ErrMissingExecutorParameter))

	require.NoError(t, executor.Initialize(remoteParams("http://bpel.invalid/service")))
	require.NoError(t, executor.Execute(context.Background(), workflow.NewRequest("ACCOUNT_LOCK", nil)))
	assert.Len(t, transport.calls, 1)
}

func TestRemoteExecutorRequestMatcher(t *testing.T) {
	executor := workflow.NewRemoteExecutor(nil, workflow.WithRequestMatcher(eventType("ACCOUNT_LOCK")))
	assert.Equal(t, workflow.RemoteExecutorName, executor.Name())
	assert.True(t, executor.CanHandle(workflow.NewRequest("ACCOUNT_LOCK", nil)))
	assert.False(t, executor.CanHandle(workflow.NewRequest("ACCOUNT_UNLOCK", nil)))
	assert.False(t, executor.CanHandle(nil))
}

func TestFastHTTPTransportSendsPreemptiveBasicAuth(t *testing.T) {
	type received struct {
		method, auth, action, contentType string
		body                              []byte
	}
	got := make(chan received, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{
			method:      r.Method,
			auth:        r.Header.Get("Authorization"),
			action:      r.Header.Get("SOAPAction"),
			contentType: r.Header.Get("Content-Type"),
			body:        body,
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	executor := workflow.NewRemoteExecutor(remoteParams(server.URL + "/services/Workflow"))
	req := workflow.NewRequestWithID("req-3", "ACCOUNT_UNLOCK", map[string]any{"Username": "alice"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, executor.Execute(ctx, req), "error statuses are not reported")

	r := <-got
	assert.Equal(t, http.MethodPost, r.method)
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:s3cret")), r.auth)
	assert.Equal(t, "urn:process", r.action)
	assert.Equal(t, "application/xml", r.contentType)

	expected, err := workflow.BuildPayload(req)
	require.NoError(t, err)
	assert.Equal(t, expected, r.body)
}

func TestRemoteExecutorDoesNotWaitForResponse(t *testing.T) {
	received := make(chan struct{}, 1)
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	transport := workflow.NewFastHTTPTransport(nil, nil, workflow.WithAcceptWindow(50*time.Millisecond))
	executor := workflow.NewRemoteExecutor(
		remoteParams(server.URL+"/services/Workflow"),
		workflow.WithTransport(transport),
	)

	started := time.Now()
	err := executor.Execute(context.Background(), workflow.NewRequest("ACCOUNT_LOCK", nil))
	elapsed := time.Since(started)

	require.NoError(t, err)
	assert.Less(t, elapsed, time.Second, "a pending response must not hold the caller")

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the endpoint")
	}
}

func TestRemoteExecutorReportsRefusedConnection(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL + "/services/Workflow"
	server.Close()

	transport := workflow.NewFastHTTPTransport(nil, nil, workflow.WithAcceptWindow(2*time.Second))
	executor := workflow.NewRemoteExecutor(remoteParams(endpoint), workflow.WithTransport(transport))

	err := executor.Execute(context.Background(), workflow.NewRequestWithID("req-9", "ACCOUNT_LOCK", nil))
	require.Error(t, err)
	assert.True(t, isKind(err, workflow.ErrRemoteInvocationFailed))

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, "req-9", rich.Metadata["request_id"])
}

func TestFastHTTPTransportCanceledContext(t *testing.T) {
	transport := workflow.NewFastHTTPTransport(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := transport.Send(ctx, workflow.Call{Endpoint: "http://127.0.0.1:1/"})
	assert.ErrorIs(t, err, context.Canceled)
}
