package chat

// Message roles used across the prompt pipeline and model providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a model-agnostic chat message.
type Message struct {
	Role    string
	Content string
}

// Turn is one completed exchange: the user's message and the model's reply.
type Turn struct {
	Human Message
	AI    Message
}

// Flatten expands turns into a flat message list, oldest first.
func Flatten(turns []Turn) []Message {
	out := make([]Message, 0, 2*len(turns))
	for _, t := range turns {
		out = append(out, t.Human, t.AI)
	}
	return out
}
