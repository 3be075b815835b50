package chat

import (
	"testing"
	"time"
)

func TestAssemble_Order(t *testing.T) {
	fixed := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	a := &Assembler{Clock: func() time.Time { return fixed }}

	history := []Message{
		{Role: RoleUser, Content: "earlier question"},
		{Role: RoleAssistant, Content: "earlier answer"},
	}
	messages := a.Assemble("be helpful", history, "new question")

	if len(messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(messages))
	}
	if messages[0].Role != RoleSystem || messages[0].Content != "be helpful" {
		t.Errorf("expected system prompt first, got %+v", messages[0])
	}
	if messages[1].Content != "earlier question" || messages[2].Content != "earlier answer" {
		t.Errorf("expected history in the middle, got %+v", messages[1:3])
	}
	want := "The current time is 14/03/2025, 15:09:26 in format %d/%m/%Y, %H:%M:%S."
	if messages[3].Content != want {
		t.Errorf("expected time note %q, got %q", want, messages[3].Content)
	}
	if messages[4].Role != RoleUser || messages[4].Content != "new question" {
		t.Errorf("expected user message last, got %+v", messages[4])
	}
}

func TestAssemble_EmptyHistory(t *testing.T) {
	a := &Assembler{}
	messages := a.Assemble("sys", nil, "hi")
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
}
