package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/dotcommander/multiagent/internal/agent"
	"github.com/dotcommander/multiagent/internal/config"
	"github.com/dotcommander/multiagent/internal/errs"
)

// Invoker runs one chat request through the agent.
type Invoker interface {
	Invoke(ctx context.Context, req agent.Request) (string, error)
}

// Handler serves the API endpoints.
type Handler struct {
	cfg     *config.Config
	invoker Invoker
}

// NewHandler creates the endpoint handlers.
func NewHandler(cfg *config.Config, invoker Invoker) *Handler {
	return &Handler{cfg: cfg, invoker: invoker}
}

// Health reports liveness. It never touches the agent.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Service: config.ServiceName})
}

// Chat validates the request, checks the model against the allow-list and
// forwards it to the agent.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r)

	req, err := decodeChatRequest(r.Body)
	if errors.Is(err, errBodyTooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Detail: err.Error()})
		return
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Rejected malformed chat request")
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: err.Error()})
		return
	}

	logger.Info().Str("model", req.ModelName).Msg("Received request for model")

	if !h.cfg.IsAllowedModel(req.ModelName) {
		logger.Warn().Str("model", req.ModelName).Msg("Invalid model name")
		h.domainError(w, r, errs.New(errs.InvalidModel, "Invalid Model Name"))
		return
	}

	answer, err := h.invoke(r.Context(), agent.Request{
		Model:        req.ModelName,
		Messages:     req.Messages,
		AllowSearch:  req.AllowSearch,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		var domainErr errs.Error
		if errors.As(err, &domainErr) && domainErr.ClientFault() {
			h.domainError(w, r, domainErr)
			return
		}
		h.internalError(w, r, err)
		return
	}

	logger.Info().Str("model", req.ModelName).Msg("Successfully got response from AI Agent")
	writeJSON(w, http.StatusOK, ChatResponse{Response: answer})
}

// invoke calls the agent, turning a panic into an error.
func (h *Handler) invoke(ctx context.Context, req agent.Request) (answer string, err error) {
	defer func() {
		if v := recover(); v != nil {
			if v == http.ErrAbortHandler { //nolint:errorlint
				panic(v)
			}
			err = &panicError{value: v, stack: debug.Stack()}
		}
	}()
	return h.invoker.Invoke(ctx, req)
}

func (h *Handler) domainError(w http.ResponseWriter, r *http.Request, err errs.Error) {
	hlog.FromRequest(r).Error().
		Err(err).
		Str("kind", err.Kind.String()).
		Msg(err.ReasonText())
	writeJSON(w, errs.HTTPStatus(err.Kind), ErrorResponse{Detail: err.ReasonText()})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	trace := diagnosticTrace(err)
	hlog.FromRequest(r).Error().
		Err(err).
		Str("trace", trace).
		Msg("Error occurred during response generation")

	detail := "Failed to get AI response: " + err.Error()
	if h.cfg.ExposeTraces {
		detail += "\n\nTraceback:\n" + trace
	}
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Detail:    detail,
		RequestID: RequestIDFrom(r.Context()),
	})
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// diagnosticTrace renders the error chain followed by a goroutine stack.
func diagnosticTrace(err error) string {
	stack := debug.Stack()
	var pe *panicError
	if errors.As(err, &pe) {
		stack = pe.stack
	}
	return strings.Join(errs.Chain(err), "\n") + "\n\n" + string(stack)
}
