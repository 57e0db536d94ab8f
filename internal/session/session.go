// Package session implements the per-client authentication state machine.
//
//	Locked --Unlock--> Unlocked --BeginAuth--> Authenticating --Login--> Authenticated
//	                      ^                          |
//	                      +--------AbortAuth---------+
//
// Logout returns any state to Locked and clears every field.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pliu/pinchat/internal/models"
)

type State int

const (
	Locked State = iota
	Unlocked
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st := Locked; st <= Authenticated; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("session: unknown state %q", text)
}

var (
	ErrInvalidTransition = errors.New("session: invalid transition")
	ErrAccessDenied      = errors.New("session: access denied")
)

// Info is a point-in-time copy of a session.
type Info struct {
	ID      string      `json:"id"`
	State   State       `json:"state"`
	UserID  string      `json:"user_id,omitempty"`
	Role    models.Role `json:"role,omitempty"`
	OwnerID string      `json:"owner_id,omitempty"`
}

type Session struct {
	mu      sync.Mutex
	id      string
	state   State
	userID  string
	role    models.Role
	ownerID string
}

// New returns a locked session.
func New(id string) *Session {
	return &Session{id: id}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{ID: s.id, State: s.state, UserID: s.userID, Role: s.role, OwnerID: s.ownerID}
}

// Unlock moves a locked session to Unlocked when pinOK is true. A wrong PIN
// leaves the session locked and returns ErrAccessDenied.
func (s *Session) Unlock(pinOK bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Locked {
		return fmt.Errorf("%w: unlock from %s", ErrInvalidTransition, s.state)
	}
	if !pinOK {
		return ErrAccessDenied
	}
	s.state = Unlocked
	return nil
}

// BeginAuth claims the session for one credential check. Only one check can
// be in flight at a time.
func (s *Session) BeginAuth() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Unlocked {
		return fmt.Errorf("%w: begin auth from %s", ErrInvalidTransition, s.state)
	}
	s.state = Authenticating
	return nil
}

// AbortAuth releases a failed credential check. It is a no-op unless the
// session is Authenticating, so a Logout during the check wins.
func (s *Session) AbortAuth() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Authenticating {
		s.state = Unlocked
	}
}

// Login completes a credential check. An empty ownerID means the principal
// is its own owner.
func (s *Session) Login(userID string, role models.Role, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Authenticating {
		return fmt.Errorf("%w: login from %s", ErrInvalidTransition, s.state)
	}
	if ownerID == "" {
		ownerID = userID
	}
	s.state = Authenticated
	s.userID = userID
	s.role = role
	s.ownerID = ownerID
	return nil
}

func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Locked
	s.userID = ""
	s.role = ""
	s.ownerID = ""
}
