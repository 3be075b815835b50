// Package history maintains the conversation-memory schema (users,
// conversations, messages) and provides the read/append operations the
// session loop needs: resolve a user, open a conversation per process run,
// append (human, ai) pairs, and reconstruct the most recent turns.
package history

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/balakv/memchat/internal/chat"
	"github.com/balakv/memchat/internal/store"
)

// ErrUserNotFound signals a user_name lookup miss. ResolveUser recovers
// from it internally by creating the user.
var ErrUserNotFound = errors.New("user not found")

// Repository owns one store handle for the lifetime of the process.
type Repository struct {
	store *store.Store
}

// Open opens the repository at path. Schema creation happens only when the
// backing file does not exist yet; an existing file is opened unchanged,
// whatever its tables hold.
func Open(path string) (*Repository, error) {
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	s, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	if fresh {
		if err := createSchema(s); err != nil {
			s.Disconnect(false)
			removeDatabaseFiles(path)
			return nil, err
		}
		// The schema must be durable before this handle goes away; an
		// existing file is never re-initialized.
		if err := s.Commit(); err != nil {
			s.Disconnect(false)
			removeDatabaseFiles(path)
			return nil, err
		}
	}
	return &Repository{store: s}, nil
}

// removeDatabaseFiles deletes a half-initialized database so the next Open
// sees a fresh path and creates the schema again.
func removeDatabaseFiles(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		os.Remove(p)
	}
}

// Store exposes the underlying table store.
func (r *Repository) Store() *store.Store {
	return r.store
}

// Close tears down the store, committing pending writes when commit is true.
func (r *Repository) Close(commit bool) error {
	return r.store.Disconnect(commit)
}

// ResolveUser returns the user id for userName, creating the user row
// (durably) on first sight.
func (r *Repository) ResolveUser(userName string) (int64, error) {
	id, err := r.userID(userName)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return 0, err
	}

	values := map[string]any{ColUserName: userName}
	if err := r.store.Insert(UsersTable, values, true); err != nil {
		return 0, fmt.Errorf("failed to create user %s: %w", userName, err)
	}
	return r.userID(userName)
}

func (r *Repository) userID(userName string) (int64, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = ?",
		ColUserID, UsersTable, ColUserName,
	)
	rows, err := r.store.Query(query, userName)
	if err != nil {
		return 0, fmt.Errorf("failed to look up user %s: %w", userName, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %s", ErrUserNotFound, userName)
	}
	var id int64
	if err := rows.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// OpenConversation inserts a new conversation row for the user, stamped
// with the current local date and time, and returns its id. Every call
// creates a new conversation.
func (r *Repository) OpenConversation(userID int64) (int64, error) {
	now := time.Now()
	zone, _ := now.Zone()

	values := map[string]any{
		ColUserID:      userID,
		ColDescription: "",
		ColTime:        fmt.Sprintf("%s %s", now.Format("15:04:05"), zone),
		ColDay:         now.Day(),
		ColMonth:       int(now.Month()),
		ColYear:        now.Year(),
	}
	if err := r.store.Insert(ConversationsTable, values, false); err != nil {
		return 0, fmt.Errorf("failed to open conversation: %w", err)
	}

	latest, err := r.store.LatestData(ConversationsTable, ColConversationID)
	if err != nil {
		return 0, err
	}
	id, ok := latest.(int64)
	if !ok {
		return 0, fmt.Errorf("conversation id is not an integer, got %T", latest)
	}
	return id, nil
}

// AppendTurn persists one completed exchange: the human message first
// (pending), then the model message with a durable commit. The pair is
// never left half-written on a failed call.
func (r *Repository) AppendTurn(conversationID int64, userName, modelName, humanText, aiText string) error {
	human := map[string]any{
		ColConversationID: conversationID,
		ColSender:         userName,
		ColContent:        humanText,
	}
	if err := r.store.Insert(MessagesTable, human, false); err != nil {
		return fmt.Errorf("failed to append human message: %w", err)
	}

	ai := map[string]any{
		ColConversationID: conversationID,
		ColSender:         modelName,
		ColContent:        aiText,
	}
	if err := r.store.Insert(MessagesTable, ai, true); err != nil {
		// Discard the pending human row; a later commit must not persist
		// it without its counterpart.
		if rbErr := r.store.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to append model message: %v (discard pending: %v)", err, rbErr)
		}
		return fmt.Errorf("failed to append model message: %w", err)
	}
	return nil
}

// LoadRecentTurns reconstructs the most recent limit turns of userName's
// history across all conversations, oldest pair first. limit < 1 means no
// limit. Rows come back newest first; the walk re-pairs them from the
// oldest end in steps of two, deciding human vs model by comparing the
// sender against userName. A leftover unpaired row is dropped.
func (r *Repository) LoadRecentTurns(userName string, limit int) ([]chat.Turn, error) {
	query := fmt.Sprintf(`
		SELECT m.%s, m.%s
		FROM %s m
		LEFT JOIN %s c ON m.%s = c.%s
		LEFT JOIN %s u ON u.%s = c.%s
		WHERE u.%s = ?
		ORDER BY c.%s DESC, c.%s DESC, c.%s DESC, c.%s DESC, m.%s DESC`,
		ColSender, ColContent,
		MessagesTable,
		ConversationsTable, ColConversationID, ColConversationID,
		UsersTable, ColUserID, ColUserID,
		ColUserName,
		ColYear, ColMonth, ColDay, ColTime, ColMessageID,
	)
	args := []any{userName}
	if limit >= 1 {
		query += " LIMIT ?"
		args = append(args, 2*limit)
	}

	rows, err := r.store.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", userName, err)
	}
	defer rows.Close()

	type row struct {
		sender  string
		content string
	}
	var result []row
	for rows.Next() {
		var rec row
		if err := rows.Scan(&rec.sender, &rec.content); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var turns []chat.Turn
	for i := len(result) - 1; i >= 1; i -= 2 {
		older, newer := result[i], result[i-1]
		switch {
		case older.sender == userName:
			turns = append(turns, chat.Turn{
				Human: chat.Message{Role: chat.RoleUser, Content: older.content},
				AI:    chat.Message{Role: chat.RoleAssistant, Content: newer.content},
			})
		case newer.sender == userName:
			turns = append(turns, chat.Turn{
				Human: chat.Message{Role: chat.RoleUser, Content: newer.content},
				AI:    chat.Message{Role: chat.RoleAssistant, Content: older.content},
			})
		}
	}
	return turns, nil
}
