package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func testRepo(t *testing.T) (*Repository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory", "history.db")
	repo, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close(false) })
	return repo, path
}

func TestOpen_CreatesSchemaOnFreshFile(t *testing.T) {
	repo, _ := testRepo(t)

	for _, table := range []string{UsersTable, ConversationsTable, MessagesTable} {
		exists, err := repo.Store().TableExists(table)
		if err != nil {
			t.Fatal(err)
		}
		if !exists {
			t.Errorf("table %s not created", table)
		}
	}
}

func TestOpen_ExistingFileIsOpenedUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory", "history.db")
	repo, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	id, err := repo.ResolveUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Close(true); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close(false)

	again, err := reopened.ResolveUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	if again != id {
		t.Errorf("expected user id %d after reopen, got %d", id, again)
	}
}

func TestResolveUser_Idempotent(t *testing.T) {
	repo, _ := testRepo(t)

	first, err := repo.ResolveUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	second, err := repo.ResolveUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("expected same user id, got %d and %d", first, second)
	}

	rows, err := repo.Store().AllRows(UsersTable)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("expected exactly one user row, got %d", len(rows))
	}
}

func TestResolveUser_DistinctUsers(t *testing.T) {
	repo, _ := testRepo(t)

	alice, err := repo.ResolveUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := repo.ResolveUser("bob")
	if err != nil {
		t.Fatal(err)
	}
	if alice == bob {
		t.Errorf("expected distinct ids for distinct users, both %d", alice)
	}
}

func TestOpenConversation_AlwaysCreatesNewRow(t *testing.T) {
	repo, _ := testRepo(t)

	userID, err := repo.ResolveUser("alice")
	if err != nil {
		t.Fatal(err)
	}

	const n = 3
	var last int64
	for i := 0; i < n; i++ {
		id, err := repo.OpenConversation(userID)
		if err != nil {
			t.Fatal(err)
		}
		if id <= last {
			t.Errorf("expected increasing conversation ids, got %d after %d", id, last)
		}
		last = id
	}

	rows, err := repo.Store().AllRows(ConversationsTable)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != n {
		t.Fatalf("expected %d conversation rows, got %d", n, len(rows))
	}
	for _, row := range rows {
		if row[ColYear].(int64) == 0 || row[ColMonth].(int64) == 0 || row[ColDay].(int64) == 0 {
			t.Errorf("conversation row missing date stamp: %v", row)
		}
		if row[ColTime].(string) == "" {
			t.Errorf("conversation row missing time stamp: %v", row)
		}
	}
}

func TestAppendTurn_ThenLoadSingle(t *testing.T) {
	repo, _ := testRepo(t)

	userID, err := repo.ResolveUser("bob")
	if err != nil {
		t.Fatal(err)
	}
	convID, err := repo.OpenConversation(userID)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.AppendTurn(convID, "bob", "model-x", "hi", "hello"); err != nil {
		t.Fatal(err)
	}

	turns, err := repo.LoadRecentTurns("bob", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].Human.Content != "hi" {
		t.Errorf("expected human content hi, got %q", turns[0].Human.Content)
	}
	if turns[0].AI.Content != "hello" {
		t.Errorf("expected ai content hello, got %q", turns[0].AI.Content)
	}
}

func appendTurns(t *testing.T, repo *Repository, user string, convID int64, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		err := repo.AppendTurn(convID, user, "model-x",
			fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestLoadRecentTurns_Window(t *testing.T) {
	repo, _ := testRepo(t)

	userID, err := repo.ResolveUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	convID, err := repo.OpenConversation(userID)
	if err != nil {
		t.Fatal(err)
	}
	appendTurns(t, repo, "alice", convID, 5)

	// limit counts turns; the window holds the most recent ones,
	// oldest-of-the-window first.
	turns, err := repo.LoadRecentTurns("alice", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(turns))
	}
	for i, turn := range turns {
		wantQ := fmt.Sprintf("q%d", i+2)
		wantA := fmt.Sprintf("a%d", i+2)
		if turn.Human.Content != wantQ || turn.AI.Content != wantA {
			t.Errorf("turn %d: expected (%s,%s), got (%s,%s)",
				i, wantQ, wantA, turn.Human.Content, turn.AI.Content)
		}
	}

	// limit below 1 means no limit.
	all, err := repo.LoadRecentTurns("alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("expected all 5 turns with limit 0, got %d", len(all))
	}
	if all[0].Human.Content != "q1" || all[4].Human.Content != "q5" {
		t.Errorf("expected chronological order q1..q5, got %q..%q",
			all[0].Human.Content, all[4].Human.Content)
	}
}

func TestLoadRecentTurns_AcrossConversations(t *testing.T) {
	repo, _ := testRepo(t)

	userID, err := repo.ResolveUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	first, err := repo.OpenConversation(userID)
	if err != nil {
		t.Fatal(err)
	}
	appendTurns(t, repo, "alice", first, 2)

	second, err := repo.OpenConversation(userID)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.AppendTurn(second, "alice", "model-x", "q3", "a3"); err != nil {
		t.Fatal(err)
	}

	turns, err := repo.LoadRecentTurns("alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns across conversations, got %d", len(turns))
	}
	if turns[2].Human.Content != "q3" {
		t.Errorf("expected newest turn q3 last, got %q", turns[2].Human.Content)
	}
}

func TestLoadRecentTurns_DropsUnpairedRow(t *testing.T) {
	repo, _ := testRepo(t)

	userID, err := repo.ResolveUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	convID, err := repo.OpenConversation(userID)
	if err != nil {
		t.Fatal(err)
	}
	appendTurns(t, repo, "alice", convID, 2)

	// One stray half-pair inserted directly, bypassing AppendTurn.
	err = repo.Store().Insert(MessagesTable, map[string]any{
		ColConversationID: convID,
		ColSender:         "alice",
		ColContent:        "stray",
	}, true)
	if err != nil {
		t.Fatal(err)
	}

	turns, err := repo.LoadRecentTurns("alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected the stray row to be dropped, got %d turns", len(turns))
	}
	for _, turn := range turns {
		if turn.Human.Content == "stray" || turn.AI.Content == "stray" {
			t.Errorf("stray row leaked into turns: %v", turn)
		}
	}
}

func TestLoadRecentTurns_UnknownUser(t *testing.T) {
	repo, _ := testRepo(t)

	turns, err := repo.LoadRecentTurns("nobody", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 0 {
		t.Errorf("expected no turns for unknown user, got %d", len(turns))
	}
}

func TestAppendTurn_IsDurable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory", "history.db")
	repo, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	userID, err := repo.ResolveUser("bob")
	if err != nil {
		t.Fatal(err)
	}
	convID, err := repo.OpenConversation(userID)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.AppendTurn(convID, "bob", "model-x", "hi", "hello"); err != nil {
		t.Fatal(err)
	}
	// Close without committing: the turn's own commit must have made it
	// durable already.
	if err := repo.Close(false); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close(false)

	turns, err := reopened.LoadRecentTurns("bob", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected the appended turn to survive reopen, got %d", len(turns))
	}
}

func TestOpen_SchemaSurvivesUncommittedClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory", "history.db")

	repo, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	// Close without any writes and without requesting a commit.
	if err := repo.Close(false); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close(false)

	for _, table := range []string{UsersTable, ConversationsTable, MessagesTable} {
		exists, err := reopened.Store().TableExists(table)
		if err != nil {
			t.Fatal(err)
		}
		if !exists {
			t.Errorf("table %s missing after uncommitted close", table)
		}
	}
	if _, err := reopened.ResolveUser("alice"); err != nil {
		t.Fatalf("expected a usable schema after reopen: %v", err)
	}
}

func TestAppendTurn_FailedPairCommitsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory", "history.db")

	repo, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.ResolveUser("alice"); err != nil {
		t.Fatal(err)
	}

	// No such conversation: the foreign key rejects the insert.
	if err := repo.AppendTurn(9999, "alice", "model-x", "orphan-human", "never-arrives"); err == nil {
		t.Fatal("expected AppendTurn against a missing conversation to fail")
	}
	// An error exit still commits on shutdown; nothing half-written may
	// be pending at this point.
	if err := repo.Close(true); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close(false)

	rows, err := reopened.Store().AllRows(MessagesTable)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no message rows after failed pair, got %v", rows)
	}
	turns, err := reopened.LoadRecentTurns("alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 0 {
		t.Errorf("expected no turns after failed pair, got %d", len(turns))
	}
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "deep", "memory", "history.db")

	repo, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close(false)

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("expected parent directory to be created: %v", err)
	}
}
