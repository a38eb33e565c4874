package conversation

import (
	"sync"
	"time"
)

// Role автор реплики.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Turn одна реплика диалога. ImageURL заполняется только у проиллюстрированных ответов бота.
type Turn struct {
	ID       int64  `json:"id"`
	Role     Role   `json:"role"`
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Store потокобезопасный упорядоченный журнал реплик. Только добавление и полная очистка.
type Store struct {
	mu     sync.Mutex
	turns  []Turn
	lastID int64
	now    func() time.Time
}

func New() *Store {
	return &Store{now: time.Now}
}

// NewWithClock создаёт хранилище с собственным источником времени (для тестов).
func NewWithClock(now func() time.Time) *Store {
	return &Store{now: now}
}

// Append добавляет реплику и возвращает её с присвоенным ID.
// ID берётся из наносекундных часов; если часы не сдвинулись, используется lastID+1.
func (s *Store) Append(role Role, text, imageURL string) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.now().UnixNano()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	t := Turn{ID: id, Role: role, Text: text, ImageURL: imageURL}
	s.turns = append(s.turns, t)
	return t
}

// Clear удаляет все реплики. lastID не сбрасывается, чтобы ключи не повторялись.
func (s *Store) Clear() {
	s.mu.Lock()
	s.turns = nil
	s.mu.Unlock()
}

// Turns возвращает копию журнала.
func (s *Store) Turns() []Turn {
	s.mu.Lock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	s.mu.Unlock()
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	l := len(s.turns)
	s.mu.Unlock()
	return l
}

// Last возвращает последнюю реплику, если она есть.
func (s *Store) Last() (Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) == 0 {
		return Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

// History возвращает пары роль/текст в порядке добавления.
func (s *Store) History() []Message {
	s.mu.Lock()
	out := make([]Message, 0, len(s.turns))
	for _, t := range s.turns {
		out = append(out, Message{Role: t.Role, Text: t.Text})
	}
	s.mu.Unlock()
	return out
}
