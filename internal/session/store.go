package session

import (
	"sync"
	"time"

	"turnaround-studio/internal/viewpoint"
)

// State holds one chat's wizard selections and the pending original photo.
// The photo is immutable for the duration of a run.
type State struct {
	Framing     viewpoint.Framing
	Style       string
	AspectRatio string
	Mode        viewpoint.Mode

	PhotoBase64 string
	PhotoMime   string

	// MessageID is the wizard message being edited in place.
	MessageID int

	Running   bool
	UpdatedAt time.Time
}

func (s State) HasPhoto() bool {
	return s.PhotoBase64 != ""
}

type stateKey struct {
	ChatID int64
	UserID int64
}

type Store struct {
	mu sync.Mutex
	m  map[stateKey]*State
}

func NewStore() *Store {
	return &Store{m: make(map[stateKey]*State)}
}

func (s *Store) Get(chatID, userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.getOrCreateLocked(chatID, userID)
}

func (s *Store) Update(chatID, userID int64, fn func(*State)) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.getOrCreateLocked(chatID, userID)
	if fn != nil {
		fn(st)
	}
	st.UpdatedAt = time.Now()
	return *st
}

// Claim marks the session as running and returns the claimed state. The
// claim fails when another run already holds it, so concurrent Generate
// taps cannot start two runs for the same chat.
func (s *Store) Claim(chatID, userID int64) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.getOrCreateLocked(chatID, userID)
	if st.Running {
		return *st, false
	}
	st.Running = true
	st.UpdatedAt = time.Now()
	return *st, true
}

// Release clears the running mark once a run finishes.
func (s *Store) Release(chatID, userID int64) {
	s.Update(chatID, userID, func(st *State) {
		st.Running = false
	})
}

// Reset returns the session to idle defaults, discarding the photo and any
// selections.
func (s *Store) Reset(chatID, userID int64) State {
	return s.Update(chatID, userID, func(st *State) {
		*st = defaultState()
	})
}

// Prune drops sessions idle for longer than maxIdle and returns how many
// were removed.
func (s *Store) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, st := range s.m {
		if st.UpdatedAt.Before(cutoff) && !st.Running {
			delete(s.m, key)
			removed++
		}
	}
	return removed
}

func (s *Store) getOrCreateLocked(chatID, userID int64) *State {
	key := stateKey{ChatID: chatID, UserID: userID}
	if st, ok := s.m[key]; ok {
		return st
	}
	st := defaultState()
	s.m[key] = &st
	return s.m[key]
}

func defaultState() State {
	return State{
		Framing:     viewpoint.FramingObject,
		Style:       viewpoint.DefaultStyle,
		AspectRatio: viewpoint.DefaultAspectRatio,
		Mode:        viewpoint.ModeStandard,
		UpdatedAt:   time.Now(),
	}
}
