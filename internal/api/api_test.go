package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/multiagent/internal/agent"
	"github.com/dotcommander/multiagent/internal/config"
	"github.com/dotcommander/multiagent/internal/errs"
)

type fakeInvoker struct {
	mu     sync.Mutex
	calls  []agent.Request
	answer string
	err    error
	panic  any
}

func (f *fakeInvoker) Invoke(_ context.Context, req agent.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.panic != nil {
		panic(f.panic)
	}
	return f.answer, f.err
}

func newTestServer(t *testing.T, inv *fakeInvoker, mutate ...func(*config.Config)) http.Handler {
	t.Helper()
	cfg := config.Default()
	for _, m := range mutate {
		m(&cfg)
	}
	return New(&cfg, inv).Router()
}

func chatBody(model string) string {
	return `{"model_name":"` + model + `","system_prompt":"be nice","messages":["hi","there"],"allow_search":true}`
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) (*httptest.ResponseRecorder, ErrorResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp ErrorResponse
	if rec.Code >= 400 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	inv := &fakeInvoker{}
	rec, _ := do(t, newTestServer(t, inv), http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"healthy","service":"Multi AI Agent"}`, rec.Body.String())
	require.Empty(t, inv.calls)
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestChat(t *testing.T) {
	inv := &fakeInvoker{answer: "Hello!"}
	rec, _ := do(t, newTestServer(t, inv), http.MethodPost, "/chat", chatBody("llama-3.3-70b-versatile"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"response":"Hello!"}`, rec.Body.String())
	require.Equal(t, []agent.Request{{
		Model:        "llama-3.3-70b-versatile",
		Messages:     []string{"hi", "there"},
		AllowSearch:  true,
		SystemPrompt: "be nice",
	}}, inv.calls)
}

func TestChatInvalidModel(t *testing.T) {
	inv := &fakeInvoker{answer: "never"}
	rec, resp := do(t, newTestServer(t, inv), http.MethodPost, "/chat", chatBody("gpt-4"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid Model Name", resp.Detail)
	require.Empty(t, inv.calls)
}

func TestChatAllowListFromConfig(t *testing.T) {
	inv := &fakeInvoker{answer: "ok"}
	h := newTestServer(t, inv, func(c *config.Config) { c.AllowedModels = []string{"custom"} })

	rec, _ := do(t, h, http.MethodPost, "/chat", chatBody("custom"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/chat", chatBody("llama-3.3-70b-versatile"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatDomainErrors(t *testing.T) {
	for name, err := range map[string]error{
		"decommissioned": errs.New(errs.ModelDecommissioned, "The model 'x' has been decommissioned"),
		"model api":      errs.Wrapf(errs.ModelAPIError, errors.New("401"), "Groq API error: %s", "Invalid API Key"),
		"no response":    errs.New(errs.NoResponseGenerated, "No AI response generated from agent"),
	} {
		t.Run(name, func(t *testing.T) {
			inv := &fakeInvoker{err: err}
			rec, resp := do(t, newTestServer(t, inv), http.MethodPost, "/chat", chatBody("llama-3.1-8b-instant"))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			var e errs.Error
			require.ErrorAs(t, err, &e)
			require.Equal(t, e.ReasonText(), resp.Detail)
			require.Empty(t, resp.RequestID)
			require.Len(t, inv.calls, 1)
		})
	}
}

func TestChatUnexpectedError(t *testing.T) {
	inv := &fakeInvoker{err: errors.New("socket closed")}
	rec, resp := do(t, newTestServer(t, inv), http.MethodPost, "/chat", chatBody("llama-3.1-8b-instant"),
		RequestIDHeader, "req-123")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to get AI response: socket closed", resp.Detail)
	require.Equal(t, "req-123", resp.RequestID)
	require.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestChatUnexpectedErrorWithTraces(t *testing.T) {
	inv := &fakeInvoker{err: errors.New("socket closed")}
	h := newTestServer(t, inv, func(c *config.Config) { c.ExposeTraces = true })
	rec, resp := do(t, h, http.MethodPost, "/chat", chatBody("llama-3.1-8b-instant"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.True(t, strings.HasPrefix(resp.Detail, "Failed to get AI response: socket closed\n\nTraceback:\n"), resp.Detail)
	require.Contains(t, resp.Detail, "goroutine")
	require.NotEmpty(t, resp.RequestID)
}

func TestChatUnclassifiedDomainErrorIsInternal(t *testing.T) {
	inv := &fakeInvoker{err: errs.Error{Reason: "missing model provider configuration"}}
	rec, resp := do(t, newTestServer(t, inv), http.MethodPost, "/chat", chatBody("llama-3.1-8b-instant"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to get AI response: missing model provider configuration", resp.Detail)
}

func TestChatPanic(t *testing.T) {
	inv := &fakeInvoker{panic: "nil map"}
	rec, resp := do(t, newTestServer(t, inv), http.MethodPost, "/chat", chatBody("llama-3.1-8b-instant"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to get AI response: panic: nil map", resp.Detail)
}

func TestChatValidation(t *testing.T) {
	for name, tc := range map[string]struct {
		body    string
		wantMsg string
	}{
		"malformed json":      {body: `{"model_name":`, wantMsg: "invalid request body"},
		"wrong message type":  {body: `{"model_name":"m","system_prompt":"","messages":[1],"allow_search":false}`, wantMsg: "invalid request body"},
		"missing messages":    {body: `{"model_name":"m","system_prompt":"","allow_search":false}`, wantMsg: "messages"},
		"null messages":       {body: `{"model_name":"m","system_prompt":"","messages":null,"allow_search":false}`, wantMsg: "messages"},
		"missing everything":  {body: `{}`, wantMsg: "model_name, system_prompt, messages, allow_search"},
		"missing allow flag":  {body: `{"model_name":"m","system_prompt":"","messages":[]}`, wantMsg: "allow_search"},
		"missing system text": {body: `{"model_name":"m","messages":[],"allow_search":true}`, wantMsg: "system_prompt"},
	} {
		t.Run(name, func(t *testing.T) {
			inv := &fakeInvoker{}
			rec, resp := do(t, newTestServer(t, inv), http.MethodPost, "/chat", tc.body)

			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			require.Contains(t, resp.Detail, tc.wantMsg)
			require.Empty(t, inv.calls)
		})
	}
}

func TestChatEmptyMessagesAccepted(t *testing.T) {
	inv := &fakeInvoker{answer: "ok"}
	rec, _ := do(t, newTestServer(t, inv), http.MethodPost, "/chat",
		`{"model_name":"llama-3.1-8b-instant","system_prompt":"","messages":[],"allow_search":false}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, inv.calls, 1)
	require.Empty(t, inv.calls[0].Messages)
}

func TestChatBodyTooLarge(t *testing.T) {
	inv := &fakeInvoker{}
	big := `{"model_name":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	rec, _ := do(t, newTestServer(t, inv), http.MethodPost, "/chat", big)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Empty(t, inv.calls)
}

func TestServeLifecycle(t *testing.T) {
	cfg := config.Default()
	srv := New(&cfg, &fakeInvoker{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.NoError(t, resp.Body.Close())
	require.Equal(t, HealthResponse{Status: "healthy", Service: "Multi AI Agent"}, health)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	cfg := config.Default()
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	err = New(&cfg, &fakeInvoker{}).Run(context.Background())
	var e errs.Error
	require.ErrorAs(t, err, &e)
	require.Contains(t, e.ReasonText(), "Could not listen on 127.0.0.1:")
}

func TestRequestIDFromEmptyContext(t *testing.T) {
	require.Empty(t, RequestIDFrom(context.Background()))
}
