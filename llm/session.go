package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fabfab/docchat/conversation"
)

// SessionClient wraps a Client with per-conversation history. An empty
// conversation identifier means a single stateless generation with no
// memory read or write.
//
// Calls sharing an identifier are serialized by a per-identifier lock, so
// two concurrent generations cannot interleave their history writes.
type SessionClient struct {
	client Client
	store  conversation.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSessionClient(client Client, store conversation.Store) (*SessionClient, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("conversation store is nil")
	}
	return &SessionClient{
		client: client,
		store:  store,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Generate answers a single prompt. With a conversation identifier the
// prompt is appended to that conversation's history, the reply is generated
// conditioned on the full history, and both turns are recorded.
func (s *SessionClient) Generate(ctx context.Context, prompt, conversationID string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	userMessage := Message{Role: RoleUser, Content: prompt}

	if conversationID == "" {
		return s.client.Generate(ctx, []Message{userMessage})
	}

	lock := s.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	history := s.store.Get(conversationID)
	messages := make([]Message, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, userMessage)

	answer, err := s.client.Generate(ctx, messages)
	if err != nil {
		return "", err
	}

	s.store.Append(conversationID, conversation.Turn{Role: conversation.RoleUser, Content: prompt})
	s.store.Append(conversationID, conversation.Turn{Role: conversation.RoleAssistant, Content: answer})
	return answer, nil
}

// GenerateWithHistory answers from an explicit message sequence. With a
// conversation identifier the stored history is replaced by the supplied
// sequence plus the reply, since the caller owns the full message list.
func (s *SessionClient) GenerateWithHistory(ctx context.Context, messages []Message, conversationID string) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty")
	}

	if conversationID == "" {
		return s.client.Generate(ctx, messages)
	}

	lock := s.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	answer, err := s.client.Generate(ctx, messages)
	if err != nil {
		return "", err
	}

	turns := make([]conversation.Turn, 0, len(messages)+1)
	for _, msg := range messages {
		turns = append(turns, conversation.Turn{Role: msg.Role, Content: msg.Content})
	}
	turns = append(turns, conversation.Turn{Role: conversation.RoleAssistant, Content: answer})
	s.store.Replace(conversationID, turns)
	return answer, nil
}

// History returns the stored turns for an identifier, empty when none exist.
func (s *SessionClient) History(conversationID string) []Message {
	turns := s.store.Get(conversationID)
	if len(turns) == 0 {
		return nil
	}
	messages := make([]Message, len(turns))
	for i, turn := range turns {
		messages[i] = Message{Role: turn.Role, Content: turn.Content}
	}
	return messages
}

// ClearHistory removes the stored turns for an identifier; clearing an
// unknown identifier is a no-op.
func (s *SessionClient) ClearHistory(conversationID string) {
	lock := s.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()
	s.store.Clear(conversationID)
}

func (s *SessionClient) conversationLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}
