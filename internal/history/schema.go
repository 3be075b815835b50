package history

import (
	"fmt"

	"github.com/balakv/memchat/internal/store"
)

// Table and column names of the conversation-memory schema.
const (
	UsersTable  = "users"
	ColUserID   = "user_id"
	ColUserName = "user_name"

	ConversationsTable = "conversations"
	ColConversationID  = "conversation_id"
	ColDescription     = "conversation_description"
	ColTime            = "time"
	ColDay             = "day"
	ColMonth           = "month"
	ColYear            = "year"

	MessagesTable = "messages"
	ColMessageID  = "message_id"
	ColSender     = "sender"
	ColContent    = "content"
)

// createSchema builds the three-table layout: users, conversations,
// messages, with foreign keys linking them.
func createSchema(s *store.Store) error {
	err := s.CreateTable(UsersTable, []store.Column{
		{Name: ColUserID, Type: "INTEGER PRIMARY KEY"},
		{Name: ColUserName, Type: "TEXT"},
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", UsersTable, err)
	}

	err = s.CreateTable(ConversationsTable, []store.Column{
		{Name: ColConversationID, Type: "INTEGER PRIMARY KEY"},
		{Name: ColUserID, Type: "INTEGER NOT NULL"},
		{Name: ColDescription, Type: "TEXT"},
		{Name: ColTime, Type: "TEXT"},
		{Name: ColDay, Type: "INTEGER"},
		{Name: ColMonth, Type: "INTEGER"},
		{Name: ColYear, Type: "INTEGER"},
	}, []string{
		fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s)", ColUserID, UsersTable, ColUserID),
	})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", ConversationsTable, err)
	}

	err = s.CreateTable(MessagesTable, []store.Column{
		{Name: ColMessageID, Type: "INTEGER PRIMARY KEY"},
		{Name: ColConversationID, Type: "INTEGER NOT NULL"},
		{Name: ColSender, Type: "TEXT"},
		{Name: ColContent, Type: "TEXT"},
	}, []string{
		fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s)", ColConversationID, ConversationsTable, ColConversationID),
	})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", MessagesTable, err)
	}
	return nil
}
