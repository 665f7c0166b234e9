package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	ModelName    string   `json:"model_name"`
	SystemPrompt string   `json:"system_prompt"`
	Messages     []string `json:"messages"`
	AllowSearch  bool     `json:"allow_search"`
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	Response string `json:"response"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id,omitempty"`
}

// chatRequestBody tells missing fields apart from zero values.
type chatRequestBody struct {
	ModelName    *string  `json:"model_name"`
	SystemPrompt *string  `json:"system_prompt"`
	Messages     []string `json:"messages"`
	AllowSearch  *bool    `json:"allow_search"`
}

// errBodyTooLarge marks a request rejected by the body size limit.
var errBodyTooLarge = errors.New("request body too large")

func decodeChatRequest(body io.Reader) (ChatRequest, error) {
	var raw chatRequestBody
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return ChatRequest{}, errBodyTooLarge
		}
		return ChatRequest{}, fmt.Errorf("invalid request body: %w", err)
	}

	var missing []string
	if raw.ModelName == nil {
		missing = append(missing, "model_name")
	}
	if raw.SystemPrompt == nil {
		missing = append(missing, "system_prompt")
	}
	if raw.Messages == nil {
		missing = append(missing, "messages")
	}
	if raw.AllowSearch == nil {
		missing = append(missing, "allow_search")
	}
	if len(missing) > 0 {
		return ChatRequest{}, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}

	return ChatRequest{
		ModelName:    *raw.ModelName,
		SystemPrompt: *raw.SystemPrompt,
		Messages:     raw.Messages,
		AllowSearch:  *raw.AllowSearch,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
