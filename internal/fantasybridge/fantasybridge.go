package fantasybridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"slices"
	"strings"

	"charm.land/fantasy"
	"github.com/rs/zerolog"

	"github.com/dotcommander/multiagent/internal/logging"
	"github.com/dotcommander/multiagent/internal/proto"
)

var _ proto.Runner = &Client{}

const (
	apiAnthropic  = "anthropic"
	apiGoogle     = "google"
	apiOpenAI     = "openai"
	apiOpenRouter = "openrouter"

	defaultMaxSteps = 10
)

// ErrStepLimit is returned when the model keeps calling tools past MaxSteps.
var ErrStepLimit = errors.New("agent step limit reached")

// Config represents provider configuration used by the fantasy bridge.
type Config struct {
	API        string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	// MaxSteps bounds the number of model calls per run. Zero means 10.
	MaxSteps int
}

// Client is a proto.Runner backed by charm.land/fantasy.
type Client struct {
	provider fantasy.Provider
	config   Config
	log      zerolog.Logger
}

// New creates a new Fantasy-backed runner.
func New(cfg Config) (*Client, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{provider: provider, config: cfg, log: logging.For("fantasybridge")}, nil
}

type streamFunc func(ctx context.Context, call fantasy.Call) (iter.Seq[fantasy.StreamPart], error)

// Run implements proto.Runner. Tool calls requested by the model are executed
// and fed back until the model answers without calling a tool.
func (c *Client) Run(ctx context.Context, request proto.Request) ([]proto.Message, error) {
	model, err := c.provider.LanguageModel(ctx, request.Model)
	if err != nil {
		return nil, fmt.Errorf("fantasy language model: %w", err)
	}
	stream := func(ctx context.Context, call fantasy.Call) (iter.Seq[fantasy.StreamPart], error) {
		seq, err := model.Stream(ctx, call)
		if err != nil {
			return nil, err
		}
		return iter.Seq[fantasy.StreamPart](seq), nil
	}
	return c.run(ctx, stream, request)
}

func (c *Client) run(ctx context.Context, stream streamFunc, request proto.Request) ([]proto.Message, error) {
	messages := slices.Clone(request.Messages)
	tools := toFantasyTools(request.Tools)
	maxSteps := c.config.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	for range maxSteps {
		prompt := messages
		if request.System != "" {
			prompt = append([]proto.Message{{Role: proto.RoleSystem, Content: request.System}}, messages...)
		}
		call := fantasy.Call{
			Prompt:          toFantasyPrompt(prompt),
			Tools:           tools,
			ToolChoice:      toolChoiceForRequest(request),
			ProviderOptions: fantasy.ProviderOptions{},
		}

		seq, err := stream(ctx, call)
		if err != nil {
			return messages, fmt.Errorf("fantasy stream: %w", err)
		}
		st := newStep()
		for part := range seq {
			st.consume(part)
			if st.err != nil {
				break
			}
		}
		if st.err != nil {
			return messages, fmt.Errorf("fantasy stream: %w", st.err)
		}
		if err := ctx.Err(); err != nil {
			return messages, err
		}
		for _, w := range st.warnings {
			c.log.Warn().Str("model", request.Model).Msg(w)
		}

		msg := st.message()
		// An empty turn is dropped, so a first reply of "" ends as NoResponseGenerated.
		if msg.Content != "" || len(msg.ToolCalls) > 0 {
			messages = append(messages, msg)
		}
		if len(msg.ToolCalls) == 0 {
			return messages, nil
		}
		for _, call := range msg.ToolCalls {
			c.log.Debug().Str("tool", call.Function.Name).Msg("calling tool")
			messages = append(messages, callTool(ctx, request.Tools, call))
		}
	}

	return messages, fmt.Errorf("%w after %d model calls", ErrStepLimit, maxSteps)
}

func callTool(ctx context.Context, tools []proto.Tool, call proto.ToolCall) proto.Message {
	result := proto.ToolCall{ID: call.ID, Function: proto.Function{Name: call.Function.Name}}
	content, err := runTool(ctx, tools, call)
	if err != nil {
		result.IsError = true
		content = err.Error()
	}
	return proto.Message{Role: proto.RoleTool, Content: content, ToolCalls: []proto.ToolCall{result}}
}

func runTool(ctx context.Context, tools []proto.Tool, call proto.ToolCall) (string, error) {
	idx := slices.IndexFunc(tools, func(t proto.Tool) bool { return t.Name == call.Function.Name })
	if idx < 0 || tools[idx].Run == nil {
		return "", fmt.Errorf("unknown tool %q", call.Function.Name)
	}
	args := call.Function.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return tools[idx].Run(ctx, args)
}

// step accumulates the stream parts of one model call.
type step struct {
	text        strings.Builder
	toolCalls   []proto.ToolCall
	seen        map[string]struct{}
	warningSeen map[string]struct{}
	warnings    []string
	err         error
}

func newStep() *step {
	return &step{seen: map[string]struct{}{}, warningSeen: map[string]struct{}{}}
}

func (s *step) message() proto.Message {
	return proto.Message{
		Role:      proto.RoleAssistant,
		Content:   s.text.String(),
		ToolCalls: s.toolCalls,
	}
}

func (s *step) consume(part fantasy.StreamPart) {
	switch part.Type {
	case fantasy.StreamPartTypeTextDelta:
		s.text.WriteString(part.Delta)
	case fantasy.StreamPartTypeToolCall:
		if part.ProviderExecuted {
			return
		}
		if _, exists := s.seen[part.ID]; exists {
			return
		}
		s.seen[part.ID] = struct{}{}
		s.toolCalls = append(s.toolCalls, proto.ToolCall{
			ID: part.ID,
			Function: proto.Function{
				Name:      part.ToolCallName,
				Arguments: json.RawMessage(part.ToolCallInput),
			},
		})
	case fantasy.StreamPartTypeError:
		s.err = part.Error
		if s.err == nil {
			s.err = errors.New("unknown stream error")
		}
	case fantasy.StreamPartTypeWarnings:
		for _, warning := range part.Warnings {
			text := strings.TrimSpace(warning.Message)
			if text == "" {
				text = strings.TrimSpace(warning.Details)
			}
			if text == "" && warning.Setting != "" {
				text = fmt.Sprintf("unsupported setting: %s", warning.Setting)
			}
			if text == "" {
				text = "provider warning"
			}
			key := string(warning.Type) + ":" + text
			if _, exists := s.warningSeen[key]; exists {
				continue
			}
			s.warningSeen[key] = struct{}{}
			s.warnings = append(s.warnings, text)
		}
	default:
		// reasoning, tool input deltas, sources and finish carry nothing we keep.
	}
}
