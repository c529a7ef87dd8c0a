package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"pdf-qa/internal/models"
)

var ErrNotFound = errors.New("session not found")

// State is everything the server remembers about one browser session
type State struct {
	ID                  string           `json:"id"`
	Filenames           []string         `json:"filenames"`
	ChatHistory         []models.Turn    `json:"chat_history"`
	ConversationHistory []models.Message `json:"conversation_history"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

func New(id string) *State {
	return &State{
		ID:                  id,
		Filenames:           []string{},
		ChatHistory:         []models.Turn{},
		ConversationHistory: []models.Message{},
	}
}

// Ready reports whether documents were uploaded; without filenames no index is trusted
func (s *State) Ready() bool {
	return len(s.Filenames) > 0
}

// AppendTurn records a question and its answer in both histories
func (s *State) AppendTurn(question, answer string) {
	s.ChatHistory = append(s.ChatHistory, models.Turn{Question: question, Answer: answer})
	s.ConversationHistory = append(s.ConversationHistory,
		models.Message{Role: models.RoleUser, Content: question},
		models.Message{Role: models.RoleAssistant, Content: answer},
	)
}

// Reset empties both histories and forgets the uploaded files
func (s *State) Reset() {
	s.Filenames = []string{}
	s.ChatHistory = []models.Turn{}
	s.ConversationHistory = []models.Message{}
}

func (s *State) Clone() *State {
	c := *s
	c.Filenames = append([]string{}, s.Filenames...)
	c.ChatHistory = append([]models.Turn{}, s.ChatHistory...)
	c.ConversationHistory = append([]models.Message{}, s.ConversationHistory...)
	return &c
}

type Store interface {
	// Get returns ErrNotFound for unknown ids
	Get(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, state *State) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*State)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, state *State) error {
	c := state.Clone()
	c.UpdatedAt = time.Now().UTC()
	m.mu.Lock()
	m.sessions[state.ID] = c
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}
