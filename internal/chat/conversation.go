package chat

import "sync"

// Store is an append-only, ordered sequence of turns for one session.
type Store interface {
	Append(turn Turn) error
	// All returns a copy of the turns in insertion order.
	All() ([]Turn, error)
	IsEmpty() (bool, error)
}

// Conversation is the in-memory Store.
type Conversation struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

func (c *Conversation) Append(turn Turn) error {
	if err := turn.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.turns = append(c.turns, turn)
	c.mu.Unlock()
	return nil
}

func (c *Conversation) All() ([]Turn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out, nil
}

func (c *Conversation) IsEmpty() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns) == 0, nil
}
