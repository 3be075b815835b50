// Package ollama is a chat client for a local Ollama server.
package ollama

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/balakv/memchat/internal/chat"
	"github.com/balakv/memchat/internal/model"
)

// Client talks to the Ollama /api/chat endpoint.
type Client struct {
	baseURL     string
	model       string
	temperature float32
	httpClient  *http.Client
}

// NewClient creates an Ollama client. baseURL is the server root,
// e.g. http://localhost:11434.
func NewClient(baseURL, modelName string, temperature float32, timeout time.Duration) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       modelName,
		temperature: temperature,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *options      `json:"options,omitempty"`
}

type options struct {
	Temperature float32 `json:"temperature,omitempty"`
}

// chatChunk is one NDJSON line of a streaming response; the final chunk
// has Done set and carries the token counts.
type chatChunk struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	Error           string `json:"error"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// ChatCompletion sends a non-streaming chat request.
func (c *Client) ChatCompletion(messages []chat.Message) (model.Completion, error) {
	body, err := c.post(messages, false)
	if err != nil {
		return model.Completion{}, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return model.Completion{}, fmt.Errorf("failed reading ollama response: %w", err)
	}
	var parsed chatChunk
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return model.Completion{}, fmt.Errorf("failed to parse ollama response: %s", truncate(string(raw), 400))
	}
	if parsed.Error != "" {
		return model.Completion{}, fmt.Errorf("ollama error: %s", parsed.Error)
	}
	return model.Completion{
		Content:      parsed.Message.Content,
		InputTokens:  parsed.PromptEvalCount,
		OutputTokens: parsed.EvalCount,
	}, nil
}

// ChatStream sends a streaming chat request, invoking onDelta for every
// content fragment and returning the assembled reply.
func (c *Client) ChatStream(messages []chat.Message, onDelta func(string)) (model.Completion, error) {
	body, err := c.post(messages, true)
	if err != nil {
		return model.Completion{}, err
	}
	defer body.Close()

	var builder strings.Builder
	result := model.Completion{}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return model.Completion{}, fmt.Errorf("failed to parse ollama stream chunk: %s", truncate(string(line), 400))
		}
		if chunk.Error != "" {
			return model.Completion{}, fmt.Errorf("ollama error: %s", chunk.Error)
		}
		if chunk.Message.Content != "" {
			builder.WriteString(chunk.Message.Content)
			if onDelta != nil {
				onDelta(chunk.Message.Content)
			}
		}
		if chunk.Done {
			result.InputTokens = chunk.PromptEvalCount
			result.OutputTokens = chunk.EvalCount
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return model.Completion{}, fmt.Errorf("ollama stream interrupted: %w", err)
	}

	result.Content = builder.String()
	return result, nil
}

func (c *Client) post(messages []chat.Message, stream bool) (io.ReadCloser, error) {
	reqBody := chatRequest{
		Model:    c.model,
		Messages: mapMessages(messages),
		Stream:   stream,
	}
	if c.temperature > 0 {
		reqBody.Options = &options{Temperature: c.temperature}
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama non-success status=%d body=%s", resp.StatusCode, truncate(string(raw), 400))
	}
	return resp.Body, nil
}

func mapMessages(messages []chat.Message) []wireMessage {
	out := make([]wireMessage, len(messages))
	for i, m := range messages {
		role := m.Role
		switch role {
		case chat.RoleSystem, chat.RoleUser, chat.RoleAssistant:
		default:
			role = chat.RoleUser
		}
		out[i] = wireMessage{Role: role, Content: m.Content}
	}
	return out
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
