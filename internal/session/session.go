// Package session держит наборы входных файлов пользователей HTTP-интерфейса.
// У каждой сессии собственный inputset.Set; наборы между сессиями не разделяются.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ryabkov82/gstr2b-merger/internal/inputset"
)

var ErrNotFound = errors.New("сессия не найдена")

type Session struct {
	ID string

	mu       sync.Mutex
	files    *inputset.Set
	lastUsed time.Time
}

// Do выполняет fn под блокировкой сессии: команды одной сессии идут строго по очереди.
func (s *Session) Do(fn func(files *inputset.Set) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.files)
}

type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewStore создаёт хранилище; ttl <= 0 отключает истечение сессий по простою.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (st *Store) Create() *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.expireLocked()
	s := &Session{
		ID:       uuid.NewString(),
		files:    inputset.New(),
		lastUsed: st.now(),
	}
	st.sessions[s.ID] = s
	return s
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.expireLocked()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.lastUsed = st.now()
	return s, nil
}

func (st *Store) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(st.sessions, id)
	return nil
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *Store) expireLocked() {
	if st.ttl <= 0 {
		return
	}
	deadline := st.now().Add(-st.ttl)
	for id, s := range st.sessions {
		if s.lastUsed.Before(deadline) {
			delete(st.sessions, id)
		}
	}
}
