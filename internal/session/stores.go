package session

import (
	"github.com/comigor/writer-chat/internal/chat"
	"github.com/comigor/writer-chat/internal/history"
	"github.com/comigor/writer-chat/internal/logger"
)

// Backends accepted by Stores.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Stores returns the StoreFactory for backend and a func releasing its
// resources. When the SQLite database cannot be opened, sessions fall back to
// plain in-memory conversations.
func Stores(backend string) (StoreFactory, func() error) {
	memory := func(string) chat.Store { return chat.NewConversation() }
	noop := func() error { return nil }

	switch backend {
	case BackendSQLite:
		db, err := history.Open()
		if err != nil {
			logger.L.Warn("sqlite open failed; using in-memory history", "error", err)
			return memory, noop
		}
		return func(id string) chat.Store { return db.Conversation(id) }, db.Close
	case BackendMemory, "":
		return memory, noop
	default:
		logger.L.Warn("unknown history backend; using in-memory history", "backend", backend)
		return memory, noop
	}
}
