// Package proto defines the provider-neutral conversation types exchanged
// between the agent invoker and the model bridge.
package proto

import (
	"context"
	"encoding/json"
)

// Role is the author of a message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation.
type Message struct {
	Role      Role
	Content   string
	ToolCalls []ToolCall
}

func (m Message) String() string {
	return string(m.Role) + ": " + m.Content
}

// Function names a tool and carries its JSON arguments.
type Function struct {
	Name      string
	Arguments json.RawMessage
}

// ToolCall is a tool invocation requested by the model, or the result of one
// when attached to a RoleTool message.
type ToolCall struct {
	ID       string
	IsError  bool
	Function Function
}

// ToolFunc executes a tool with the raw JSON arguments chosen by the model.
type ToolFunc func(ctx context.Context, arguments json.RawMessage) (string, error)

// Tool is a function the model may call while answering.
type Tool struct {
	Name        string
	Description string
	// Parameters maps argument names to JSON schema fragments.
	Parameters map[string]any
	Required   []string
	Run        ToolFunc
}

// Request is a single agent run.
type Request struct {
	Model    string
	System   string
	Messages []Message
	Tools    []Tool
}

// Runner executes a request against a model, running any tool calls it
// makes, and returns the conversation including everything the model said.
type Runner interface {
	Run(ctx context.Context, request Request) ([]Message, error)
}

// LastOf returns the last message authored by role.
func LastOf(messages []Message, role Role) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == role {
			return messages[i], true
		}
	}
	return Message{}, false
}
