package domain

import "context"

// Role is a chat message author.
type Role string

// Chat roles understood by the model provider.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role/content pair of a chat prompt.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is a chat completion call. Choices <= 1 asks for a single completion.
type CompletionRequest struct {
	Messages []Message
	Choices  int
}

// CompletionResult carries the returned choices and token usage.
type CompletionResult struct {
	Choices []string
	Usage   Usage
}

// Completer is the chat completion contract between layers.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}
