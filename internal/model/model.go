package model

import "github.com/balakv/memchat/internal/chat"

// Completion is the common response model for all providers.
type Completion struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the model backend abstraction used by the session loop.
// ChatStream delivers the reply as incremental fragments through onDelta;
// a provider without native streaming may emit the whole reply as a single
// fragment.
type Provider interface {
	ChatCompletion(messages []chat.Message) (Completion, error)
	ChatStream(messages []chat.Message, onDelta func(string)) (Completion, error)
}
