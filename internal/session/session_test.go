package session

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/balakv/memchat/internal/dummy"
	"github.com/balakv/memchat/internal/history"
	"github.com/balakv/memchat/internal/tool"
)

func testRepo(t *testing.T) *history.Repository {
	t.Helper()
	repo, err := history.Open(filepath.Join(t.TempDir(), "memory", "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close(false) })
	return repo
}

func testConfig() Config {
	return Config{
		SystemPrompt:    "be helpful",
		UserName:        "alice",
		ModelName:       "model-x",
		HistoryWindow:   10,
		ShortHistoryMax: 12,
	}
}

func TestRun_SingleExchange(t *testing.T) {
	repo := testRepo(t)
	provider, err := dummy.NewProvider("msg:hello there")
	if err != nil {
		t.Fatal(err)
	}

	sess := New(repo, provider, nil, nil, testConfig())

	in := strings.NewReader("hi\nexit\n")
	var out bytes.Buffer
	if err := sess.Run(in, &out); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out.String(), "hello there") {
		t.Errorf("expected streamed reply in output, got %q", out.String())
	}

	turns, err := repo.LoadRecentTurns("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected exactly one persisted turn, got %d", len(turns))
	}
	if turns[0].Human.Content != "hi" || turns[0].AI.Content != "hello there" {
		t.Errorf("unexpected persisted turn: %+v", turns[0])
	}
}

func TestRun_ExitPersistsNothing(t *testing.T) {
	repo := testRepo(t)
	provider, err := dummy.NewProvider("msg:unused")
	if err != nil {
		t.Fatal(err)
	}

	sess := New(repo, provider, nil, nil, testConfig())

	in := strings.NewReader("exit\n")
	var out bytes.Buffer
	if err := sess.Run(in, &out); err != nil {
		t.Fatal(err)
	}

	turns, err := repo.LoadRecentTurns("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 0 {
		t.Errorf("expected no persisted turns, got %d", len(turns))
	}
	// A conversation row is still opened for the run.
	rows, err := repo.Store().AllRows(history.ConversationsTable)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("expected one conversation row, got %d", len(rows))
	}
}

func TestRun_ExitIsCaseInsensitive(t *testing.T) {
	repo := testRepo(t)
	provider, err := dummy.NewProvider("msg:unused")
	if err != nil {
		t.Fatal(err)
	}
	sess := New(repo, provider, nil, nil, testConfig())

	in := strings.NewReader("EXIT\n")
	var out bytes.Buffer
	if err := sess.Run(in, &out); err != nil {
		t.Fatal(err)
	}
	turns, err := repo.LoadRecentTurns("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 0 {
		t.Errorf("expected no persisted turns, got %d", len(turns))
	}
}

func TestRun_BlankLinesAreSkipped(t *testing.T) {
	repo := testRepo(t)
	provider, err := dummy.NewProvider("msg:one reply")
	if err != nil {
		t.Fatal(err)
	}
	sess := New(repo, provider, nil, nil, testConfig())

	in := strings.NewReader("\n   \nhi\nexit\n")
	var out bytes.Buffer
	if err := sess.Run(in, &out); err != nil {
		t.Fatal(err)
	}

	turns, err := repo.LoadRecentTurns("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 {
		t.Errorf("expected one turn for one real input, got %d", len(turns))
	}
}

func TestRun_HistorySeedsNextSession(t *testing.T) {
	repo := testRepo(t)

	first, err := dummy.NewProvider("msg:first answer")
	if err != nil {
		t.Fatal(err)
	}
	sess := New(repo, first, nil, nil, testConfig())
	var out bytes.Buffer
	if err := sess.Run(strings.NewReader("first question\nexit\n"), &out); err != nil {
		t.Fatal(err)
	}

	second, err := dummy.NewProvider("msg:second answer")
	if err != nil {
		t.Fatal(err)
	}
	sess = New(repo, second, nil, nil, testConfig())
	out.Reset()
	if err := sess.Run(strings.NewReader("second question\nexit\n"), &out); err != nil {
		t.Fatal(err)
	}

	turns, err := repo.LoadRecentTurns("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns across sessions, got %d", len(turns))
	}
	if turns[0].Human.Content != "first question" || turns[1].Human.Content != "second question" {
		t.Errorf("unexpected order: %+v", turns)
	}

	// Each session run opened its own conversation.
	rows, err := repo.Store().AllRows(history.ConversationsTable)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 conversation rows, got %d", len(rows))
	}
}

func TestRun_ProviderErrorFailsFast(t *testing.T) {
	repo := testRepo(t)
	provider, err := dummy.NewProvider("err:provider_api")
	if err != nil {
		t.Fatal(err)
	}
	sess := New(repo, provider, nil, nil, testConfig())

	in := strings.NewReader("hi\nexit\n")
	var out bytes.Buffer
	if err := sess.Run(in, &out); err == nil {
		t.Fatal("expected the provider error to surface")
	}

	turns, err := repo.LoadRecentTurns("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 0 {
		t.Errorf("expected no half-persisted turn, got %d", len(turns))
	}
}

func TestRun_ToolRound(t *testing.T) {
	repo := testRepo(t)

	sandboxRoot := filepath.Join(t.TempDir(), "work")
	sandbox, err := tool.NewSandbox(sandboxRoot)
	if err != nil {
		t.Fatal(err)
	}
	registry := tool.NewRegistry()
	if err := registry.Register(&tool.CreateFolder{Sandbox: sandbox}); err != nil {
		t.Fatal(err)
	}
	runner := tool.NewRunner(registry)

	// First reply asks for a tool call, second delivers the final answer.
	toolCall := `{"tool_calls":[{"name":"create_folder","arguments":{"path":"proj"}}],"final_answer":""}`
	finalAnswer := `{"tool_calls":[],"final_answer":"made the folder"}`
	script := "msgb64:" + base64.StdEncoding.EncodeToString([]byte(toolCall)) +
		",msgb64:" + base64.StdEncoding.EncodeToString([]byte(finalAnswer))
	provider, err := dummy.NewProvider(script)
	if err != nil {
		t.Fatal(err)
	}

	sess := New(repo, provider, registry, runner, testConfig())

	in := strings.NewReader("make a folder\nexit\n")
	var out bytes.Buffer
	if err := sess.Run(in, &out); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(sandbox.Root, "proj")); err != nil {
		t.Errorf("expected tool to create the folder: %v", err)
	}
	if !strings.Contains(out.String(), "calling tool create_folder") {
		t.Errorf("expected tool-call notice in output, got %q", out.String())
	}

	turns, err := repo.LoadRecentTurns("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected one persisted turn, got %d", len(turns))
	}
	if turns[0].AI.Content != "made the folder" {
		t.Errorf("expected the final answer to be persisted, got %q", turns[0].AI.Content)
	}
}
