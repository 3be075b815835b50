// Package dummy provides a scripted model provider for tests and offline
// runs. The script is a comma-separated action list; each ChatCompletion
// call consumes the next action, and the last action repeats forever.
//
// Actions: "ok", "msg:<text>", "msgb64:<base64>", "err:<class>", "sleep:<ms>".
package dummy

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/balakv/memchat/internal/chat"
	"github.com/balakv/memchat/internal/model"
)

type action struct {
	kind string
	arg  string
}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		switch {
		case token == "ok":
			actions = append(actions, action{kind: "ok"})
		case strings.HasPrefix(token, "err:"):
			actions = append(actions, action{kind: "err", arg: strings.TrimPrefix(token, "err:")})
		case strings.HasPrefix(token, "sleep:"):
			actions = append(actions, action{kind: "sleep", arg: strings.TrimPrefix(token, "sleep:")})
		case strings.HasPrefix(token, "msg:"):
			actions = append(actions, action{kind: "msg", arg: strings.TrimPrefix(token, "msg:")})
		case strings.HasPrefix(token, "msgb64:"):
			actions = append(actions, action{kind: "msgb64", arg: strings.TrimPrefix(token, "msgb64:")})
		default:
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

// Provider is a scripted model.Provider.
type Provider struct {
	mu      sync.Mutex
	actions []action
	index   int
}

// NewProvider parses the script and returns a provider.
func NewProvider(script string) (*Provider, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &Provider{actions: actions}, nil
}

func (p *Provider) next() action {
	if p.index >= len(p.actions) {
		return p.actions[len(p.actions)-1]
	}
	a := p.actions[p.index]
	p.index++
	return a
}

// ChatCompletion consumes the next scripted action.
func (p *Provider) ChatCompletion(messages []chat.Message) (model.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a := p.next()
	switch a.kind {
	case "err":
		return model.Completion{}, fmt.Errorf("dummy provider error class=%s", emptyAs(a.arg, "provider_api"))
	case "sleep":
		ms, _ := strconv.Atoi(a.arg)
		if ms > 0 {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
		return completion("dummy-after-sleep"), nil
	case "msg":
		return completion(a.arg), nil
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return model.Completion{}, fmt.Errorf("dummy provider msgb64 decode failed: %w", err)
		}
		return completion(string(raw)), nil
	default:
		return completion(emptyAs(a.arg, "dummy-ok")), nil
	}
}

// ChatStream emits the scripted reply as one fragment.
func (p *Provider) ChatStream(messages []chat.Message, onDelta func(string)) (model.Completion, error) {
	result, err := p.ChatCompletion(messages)
	if err != nil {
		return model.Completion{}, err
	}
	if onDelta != nil {
		onDelta(result.Content)
	}
	return result, nil
}

func completion(content string) model.Completion {
	return model.Completion{Content: content, InputTokens: 1, OutputTokens: 1}
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
