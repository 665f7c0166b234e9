package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dotcommander/multiagent/internal/config"
	"github.com/dotcommander/multiagent/internal/errs"
	"github.com/dotcommander/multiagent/internal/fantasybridge"
	"github.com/dotcommander/multiagent/internal/logging"
	"github.com/dotcommander/multiagent/internal/proto"
	"github.com/dotcommander/multiagent/internal/search"
)

// Request is one chat turn.
type Request struct {
	Model        string
	Messages     []string
	AllowSearch  bool
	SystemPrompt string
}

// RunnerFactory builds the model client used for a single request.
type RunnerFactory func(fantasybridge.Config) (proto.Runner, error)

// Service runs chat requests against the configured model API.
//
// It is UI-agnostic; the HTTP API is its only caller today.
type Service struct {
	cfg           *config.Config
	searcher      search.Searcher
	runnerFactory RunnerFactory
	log           zerolog.Logger
}

// New creates an agent service. A nil searcher uses Tavily with the
// configured key; runnerFactory defaults to NewRunner.
func New(cfg *config.Config, searcher search.Searcher, runnerFactory ...RunnerFactory) *Service {
	if searcher == nil {
		searcher = search.New(cfg.TavilyAPIKey, search.WithBaseURL(cfg.TavilyBaseURL))
	}
	factory := NewRunner
	if len(runnerFactory) > 0 && runnerFactory[0] != nil {
		factory = runnerFactory[0]
	}
	return &Service{
		cfg:           cfg,
		searcher:      searcher,
		runnerFactory: factory,
		log:           logging.For("agent"),
	}
}

// NewRunner creates the fantasy bridge client.
func NewRunner(cfg fantasybridge.Config) (proto.Runner, error) {
	if cfg.API == "" {
		return nil, errs.Error{Reason: "missing model provider configuration"}
	}
	client, err := fantasybridge.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("new fantasy bridge client: %w", err)
	}
	return client, nil
}

// Invoke runs the agent once and returns the text of its last answer.
func (s *Service) Invoke(ctx context.Context, req Request) (string, error) {
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	runner, err := s.runnerFactory(s.providerConfig())
	if err != nil {
		return "", err
	}

	request := proto.Request{
		Model:    req.Model,
		System:   req.SystemPrompt,
		Messages: userMessages(req.Messages),
		Tools:    s.tools(req.AllowSearch),
	}
	s.log.Debug().
		Str("model", req.Model).
		Int("messages", len(request.Messages)).
		Bool("search", req.AllowSearch).
		Msg("invoking agent")

	messages, err := runner.Run(ctx, request)
	if err != nil {
		return "", s.classify(err, req.Model)
	}

	answer, ok := proto.LastOf(messages, proto.RoleAssistant)
	if !ok {
		return "", errs.New(errs.NoResponseGenerated, "No AI response generated from agent")
	}
	return answer.Content, nil
}

func (s *Service) providerConfig() fantasybridge.Config {
	return fantasybridge.Config{
		API:     strings.ToLower(s.cfg.ModelAPI),
		BaseURL: s.cfg.ModelBaseURL,
		APIKey:  s.cfg.ModelAPIKey(),
	}
}

func (s *Service) tools(allowSearch bool) []proto.Tool {
	if !allowSearch {
		return nil
	}
	return []proto.Tool{search.NewTool(s.searcher, search.MaxResults)}
}

func userMessages(texts []string) []proto.Message {
	messages := make([]proto.Message, 0, len(texts))
	for _, text := range texts {
		messages = append(messages, proto.Message{Role: proto.RoleUser, Content: text})
	}
	return messages
}
