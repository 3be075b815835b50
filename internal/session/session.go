// Package session runs the interactive chat loop: read input, assemble the
// prompt from the persisted history window, stream the model reply, and
// persist the completed (human, ai) pair.
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/balakv/memchat/internal/chat"
	"github.com/balakv/memchat/internal/history"
	"github.com/balakv/memchat/internal/logger"
	"github.com/balakv/memchat/internal/model"
	"github.com/balakv/memchat/internal/tool"
)

const prompt = "Enter your input: "

// Config carries the session parameters.
type Config struct {
	SystemPrompt    string
	UserName        string
	ModelName       string
	HistoryWindow   int // turns loaded from the store at start
	ShortHistoryMax int // messages kept in memory between exchanges
	MaxToolRounds   int
	ExitWord        string
}

// Session ties the history repository, the model provider, and the optional
// tool registry into one interactive loop.
type Session struct {
	repo       *history.Repository
	provider   model.Provider
	assembler  *chat.Assembler
	compressor *chat.Compressor
	registry   *tool.Registry
	runner     *tool.Runner
	cfg        Config
}

// New creates a session. registry and runner may be nil for a plain chat
// session without tools.
func New(
	repo *history.Repository,
	provider model.Provider,
	registry *tool.Registry,
	runner *tool.Runner,
	cfg Config,
) *Session {
	if cfg.ExitWord == "" {
		cfg.ExitWord = "exit"
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 5
	}
	return &Session{
		repo:       repo,
		provider:   provider,
		assembler:  &chat.Assembler{},
		compressor: &chat.Compressor{MaxMessages: cfg.ShortHistoryMax},
		registry:   registry,
		runner:     runner,
		cfg:        cfg,
	}
}

// Run drives the blocking read-model-persist loop until the exit sentinel
// or end of input. Every completed exchange is appended to the store
// exactly once.
func (s *Session) Run(in io.Reader, out io.Writer) error {
	userID, err := s.repo.ResolveUser(s.cfg.UserName)
	if err != nil {
		return err
	}
	conversationID, err := s.repo.OpenConversation(userID)
	if err != nil {
		return err
	}
	turns, err := s.repo.LoadRecentTurns(s.cfg.UserName, s.cfg.HistoryWindow)
	if err != nil {
		return err
	}
	short := s.compressor.Compress(chat.Flatten(turns))
	logger.Infow("session started",
		"user", s.cfg.UserName,
		"user_id", userID,
		"conversation_id", conversationID,
		"loaded_turns", len(turns),
	)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.EqualFold(input, s.cfg.ExitWord) {
			return nil
		}

		reply, err := s.exchange(out, short, input)
		if err != nil {
			return err
		}
		if err := s.repo.AppendTurn(conversationID, s.cfg.UserName, s.cfg.ModelName, input, reply); err != nil {
			return err
		}
		short = append(short,
			chat.Message{Role: chat.RoleUser, Content: input},
			chat.Message{Role: chat.RoleAssistant, Content: reply},
		)
		short = s.compressor.Compress(short)
	}
}

// exchange runs one model turn, including tool-call rounds when tools are
// enabled, and returns the final reply text.
func (s *Session) exchange(out io.Writer, short []chat.Message, input string) (string, error) {
	system := s.cfg.SystemPrompt
	if s.registry != nil {
		system = system + "\n" + toolInstruction(s.registry)
	}
	messages := s.assembler.Assemble(system, short, input)

	reply, err := s.streamTurn(out, messages)
	if err != nil {
		return "", err
	}
	if s.registry == nil {
		if reply == "" {
			return "", fmt.Errorf("validation: empty model reply")
		}
		return reply, nil
	}

	for round := 0; round < s.cfg.MaxToolRounds; round++ {
		envelope, ok := parseToolProtocol(reply)
		if !ok {
			break
		}
		if len(envelope.ToolCalls) == 0 {
			if final := strings.TrimSpace(envelope.FinalAnswer); final != "" {
				reply = final
			}
			break
		}

		resultsText := s.executeToolCalls(out, envelope.ToolCalls)
		messages = append(messages,
			chat.Message{Role: chat.RoleAssistant, Content: reply},
			chat.Message{
				Role:    chat.RoleUser,
				Content: "Tool results:\n" + resultsText + "\nReturn JSON: {\"tool_calls\":[],\"final_answer\":\"...\"}",
			},
		)
		reply, err = s.streamTurn(out, messages)
		if err != nil {
			return "", err
		}
	}
	if parsed, ok := parseToolProtocol(reply); ok {
		if final := strings.TrimSpace(parsed.FinalAnswer); final != "" {
			reply = final
		}
	}
	if reply == "" {
		return "", fmt.Errorf("validation: empty model reply")
	}
	return reply, nil
}

func (s *Session) streamTurn(out io.Writer, messages []chat.Message) (string, error) {
	completion, err := s.provider.ChatStream(messages, func(delta string) {
		fmt.Fprint(out, delta)
	})
	if err != nil {
		return "", err
	}
	fmt.Fprintln(out)
	return strings.TrimSpace(completion.Content), nil
}

func (s *Session) executeToolCalls(out io.Writer, calls []tool.Call) string {
	var parts []string
	for _, call := range calls {
		fmt.Fprintf(out, "calling tool %s\n", call.Name)
		result, err := s.runner.RunOne(context.Background(), call)
		if err != nil {
			logger.Warnf("tool %s failed: %v", call.Name, err)
			parts = append(parts, fmt.Sprintf("%s: error: %v", call.Name, err))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", call.Name, result.Output))
	}
	return strings.Join(parts, "\n")
}

type toolProtocol struct {
	ToolCalls   []tool.Call `json:"tool_calls"`
	FinalAnswer string      `json:"final_answer"`
}

func parseToolProtocol(content string) (toolProtocol, bool) {
	var parsed toolProtocol
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &parsed); err == nil {
		return parsed, true
	}
	jsonObj, ok := extractJSONObject(content)
	if !ok {
		return toolProtocol{}, false
	}
	if err := json.Unmarshal([]byte(jsonObj), &parsed); err != nil {
		return toolProtocol{}, false
	}
	return parsed, true
}

// extractJSONObject finds the first balanced top-level JSON object in
// content, tolerating surrounding prose.
func extractJSONObject(content string) (string, bool) {
	start := strings.Index(content, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1], true
			}
		}
	}
	return "", false
}

func toolInstruction(registry *tool.Registry) string {
	return "You can use file tools in this environment. " +
		"Available tools: " + strings.Join(registry.Names(), ", ") + ". " +
		"All paths are inside the working directory; use relative paths. " +
		"For write_file, always set non-empty \"content\". " +
		"Always respond with strict JSON: " +
		"{\"tool_calls\":[{\"name\":\"...\",\"arguments\":{...}}],\"final_answer\":\"...\"}. " +
		"If a tool is needed, set final_answer to empty and fill tool_calls. " +
		"If no tool is needed, set tool_calls to [] and provide final_answer."
}
