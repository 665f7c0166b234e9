package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/multiagent/internal/config"
	"github.com/dotcommander/multiagent/internal/errs"
	"github.com/dotcommander/multiagent/internal/fantasybridge"
	"github.com/dotcommander/multiagent/internal/proto"
	"github.com/dotcommander/multiagent/internal/search"
)

// stubRunner is a test double for proto.Runner.
type stubRunner struct {
	reply    []proto.Message
	err      error
	got      proto.Request
	calls    int
	deadline bool
}

func (r *stubRunner) Run(ctx context.Context, req proto.Request) ([]proto.Message, error) {
	r.calls++
	r.got = req
	_, r.deadline = ctx.Deadline()
	return append(req.Messages, r.reply...), r.err
}

type nopSearcher struct{}

func (nopSearcher) Search(context.Context, string, int) ([]search.Result, error) { return nil, nil }

// recordingSearcher remembers the arguments of the last search.
type recordingSearcher struct {
	query      string
	maxResults int
}

func (s *recordingSearcher) Search(_ context.Context, query string, maxResults int) ([]search.Result, error) {
	s.query, s.maxResults = query, maxResults
	return []search.Result{{Title: "t", URL: "https://example.com"}}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ModelAPIKeyEnv = "TEST_MODEL_KEY"
	cfg.RequestTimeout = 0
	return &cfg
}

func newTestService(t *testing.T, cfg *config.Config, runner *stubRunner) (*Service, *fantasybridge.Config) {
	t.Helper()
	var gotCfg fantasybridge.Config
	factory := func(c fantasybridge.Config) (proto.Runner, error) {
		gotCfg = c
		return runner, nil
	}
	return New(cfg, nopSearcher{}, factory), &gotCfg
}

func TestInvoke(t *testing.T) {
	t.Setenv("TEST_MODEL_KEY", "gsk-test")

	runner := &stubRunner{reply: []proto.Message{
		{Role: proto.RoleAssistant, Content: "thinking", ToolCalls: []proto.ToolCall{{ID: "1"}}},
		{Role: proto.RoleTool, Content: "[]"},
		{Role: proto.RoleAssistant, Content: "final answer"},
	}}
	svc, providerCfg := newTestService(t, testConfig(), runner)

	answer, err := svc.Invoke(context.Background(), Request{
		Model:        "llama-3.1-8b-instant",
		Messages:     []string{"first", "second"},
		SystemPrompt: "be kind",
	})
	require.NoError(t, err)
	require.Equal(t, "final answer", answer)

	require.Equal(t, 1, runner.calls)
	require.Equal(t, "groq", providerCfg.API)
	require.Empty(t, providerCfg.BaseURL)
	require.Equal(t, "gsk-test", providerCfg.APIKey)

	require.Equal(t, "llama-3.1-8b-instant", runner.got.Model)
	require.Equal(t, "be kind", runner.got.System)
	require.Equal(t, []proto.Message{
		{Role: proto.RoleUser, Content: "first"},
		{Role: proto.RoleUser, Content: "second"},
	}, runner.got.Messages)
	require.Empty(t, runner.got.Tools)
	require.False(t, runner.deadline)
}

func TestInvokeSearchTool(t *testing.T) {
	runner := &stubRunner{reply: []proto.Message{{Role: proto.RoleAssistant, Content: "ok"}}}
	svc, _ := newTestService(t, testConfig(), runner)

	_, err := svc.Invoke(context.Background(), Request{Model: "m", Messages: []string{"q"}, AllowSearch: true})
	require.NoError(t, err)
	require.Len(t, runner.got.Tools, 1)
	require.Equal(t, search.ToolName, runner.got.Tools[0].Name)
}

func TestInvokeSearchToolLimitsResults(t *testing.T) {
	searcher := &recordingSearcher{}
	runner := &stubRunner{reply: []proto.Message{{Role: proto.RoleAssistant, Content: "ok"}}}
	svc := New(testConfig(), searcher, func(fantasybridge.Config) (proto.Runner, error) {
		return runner, nil
	})

	_, err := svc.Invoke(context.Background(), Request{Model: "m", Messages: []string{"q"}, AllowSearch: true})
	require.NoError(t, err)
	require.Len(t, runner.got.Tools, 1)

	out, err := runner.got.Tools[0].Run(context.Background(), json.RawMessage(`{"query":"go releases"}`))
	require.NoError(t, err)
	require.Contains(t, out, "https://example.com")
	require.Equal(t, "go releases", searcher.query)
	require.Equal(t, 2, searcher.maxResults)
}

func TestProviderConfigFollowsModelAPI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := config.Default()
	cfg.ModelAPI = "OpenAI"

	got := New(&cfg, nopSearcher{}).providerConfig()
	require.Equal(t, "openai", got.API)
	require.Empty(t, got.BaseURL)
	require.Equal(t, "sk-test", got.APIKey)
}

func TestInvokeEmptySystemPrompt(t *testing.T) {
	runner := &stubRunner{reply: []proto.Message{{Role: proto.RoleAssistant, Content: "ok"}}}
	svc, _ := newTestService(t, testConfig(), runner)

	_, err := svc.Invoke(context.Background(), Request{Model: "m", Messages: []string{"q"}})
	require.NoError(t, err)
	require.Empty(t, runner.got.System)
}

func TestInvokeRequestTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = time.Minute
	runner := &stubRunner{reply: []proto.Message{{Role: proto.RoleAssistant, Content: "ok"}}}
	svc, _ := newTestService(t, cfg, runner)

	_, err := svc.Invoke(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	require.True(t, runner.deadline)
}

func TestInvokeNoResponse(t *testing.T) {
	for name, reply := range map[string][]proto.Message{
		"nothing":        nil,
		"only tool hops": {{Role: proto.RoleTool, Content: "[]"}},
	} {
		t.Run(name, func(t *testing.T) {
			svc, _ := newTestService(t, testConfig(), &stubRunner{reply: reply})

			_, err := svc.Invoke(context.Background(), Request{Model: "m", Messages: []string{"q"}})
			require.Equal(t, errs.NoResponseGenerated, errs.KindOf(err))
			require.EqualError(t, err, "No AI response generated from agent")
		})
	}
}

func TestInvokeErrors(t *testing.T) {
	boom := errors.New("network unreachable")

	t.Run("runner error propagates unchanged", func(t *testing.T) {
		svc, _ := newTestService(t, testConfig(), &stubRunner{err: boom})

		_, err := svc.Invoke(context.Background(), Request{Model: "m"})
		require.ErrorIs(t, err, boom)
		require.Equal(t, errs.Unclassified, errs.KindOf(err))
	})

	t.Run("factory error propagates", func(t *testing.T) {
		svc := New(testConfig(), nopSearcher{}, func(fantasybridge.Config) (proto.Runner, error) {
			return nil, boom
		})

		_, err := svc.Invoke(context.Background(), Request{Model: "m"})
		require.ErrorIs(t, err, boom)
	})
}

func TestNewDefaults(t *testing.T) {
	svc := New(testConfig(), nil)
	require.NotNil(t, svc.searcher)
	require.NotNil(t, svc.runnerFactory)

	runner, err := svc.runnerFactory(svc.providerConfig())
	require.NoError(t, err)
	require.NotNil(t, runner)

	_, err = NewRunner(fantasybridge.Config{})
	require.Error(t, err)
}
