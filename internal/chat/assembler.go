package chat

import (
	"fmt"
	"time"
)

// Assembler combines system prompt, history window, a current-time note,
// and the new user message into the final prompt message list.
type Assembler struct {
	// Clock is overridable for tests; nil means time.Now.
	Clock func() time.Time
}

func (a *Assembler) now() time.Time {
	if a.Clock != nil {
		return a.Clock()
	}
	return time.Now()
}

// Assemble builds: system + history + time note + user.
func (a *Assembler) Assemble(system string, history []Message, userMsg string) []Message {
	messages := make([]Message, 0, len(history)+3)
	messages = append(messages, Message{Role: RoleSystem, Content: system})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: a.timeNote()})
	messages = append(messages, Message{Role: RoleUser, Content: userMsg})
	return messages
}

func (a *Assembler) timeNote() string {
	return fmt.Sprintf(
		"The current time is %s in format %%d/%%m/%%Y, %%H:%%M:%%S.",
		a.now().Format("02/01/2006, 15:04:05"),
	)
}
