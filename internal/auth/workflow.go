package auth

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/pliu/pinchat/internal/models"
	"github.com/pliu/pinchat/internal/session"
	"github.com/pliu/pinchat/internal/store"
)

// ErrInvalidCredential is the only failure callers see for a bad PIN,
// password or username.
var ErrInvalidCredential = errors.New("invalid credentials")

const DefaultOwnerEmail = "owner@app.com"

// DMResolver finds or creates the direct-message chat for an app user.
type DMResolver interface {
	ResolveFor(ctx context.Context, user *models.AppUser) (string, error)
}

type Workflow struct {
	Store       store.Store
	PIN         Verifier
	OwnerSecret Verifier
	// OwnerEmail identifies the singleton owner row.
	OwnerEmail string
	HashCost   int
	DM         DMResolver
}

func (w *Workflow) ownerEmail() string {
	if w.OwnerEmail == "" {
		return DefaultOwnerEmail
	}
	return w.OwnerEmail
}

// UnlockWithPin opens the lock screen for s.
func (w *Workflow) UnlockWithPin(s *session.Session, pin string) error {
	err := s.Unlock(w.PIN.Verify(pin))
	if errors.Is(err, session.ErrAccessDenied) {
		return ErrInvalidCredential
	}
	return err
}

// AuthenticateOwner checks the owner secret and logs s in as the owner,
// creating the owner row on first use.
func (w *Workflow) AuthenticateOwner(ctx context.Context, s *session.Session, password string) (string, error) {
	if err := s.BeginAuth(); err != nil {
		return "", err
	}
	if !w.OwnerSecret.Verify(password) {
		s.AbortAuth()
		return "", ErrInvalidCredential
	}

	owner, err := w.ensureOwner(ctx, password)
	if err != nil {
		s.AbortAuth()
		return "", err
	}
	if err := s.Login(owner.ID, models.RoleOwner, ""); err != nil {
		return "", err
	}
	return owner.ID, nil
}

func (w *Workflow) ensureOwner(ctx context.Context, secret string) (*models.Owner, error) {
	owner, err := w.Store.GetOwnerByEmail(ctx, w.ownerEmail())
	if err == nil {
		return owner, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(secret, w.HashCost)
	if err != nil {
		return nil, fmt.Errorf("%w: hash owner secret: %w", store.ErrUnavailable, err)
	}
	owner = &models.Owner{Email: w.ownerEmail(), PasswordHash: hash}
	err = w.Store.CreateOwner(ctx, owner)
	if errors.Is(err, store.ErrConflict) {
		// Another login created it first.
		return w.Store.GetOwnerByEmail(ctx, w.ownerEmail())
	}
	if err != nil {
		return nil, err
	}
	return owner, nil
}

// AuthenticateUser checks an app user's credentials, logs s in and returns
// the user's DM chat ID. Unknown users, inactive users, wrong passwords and
// lookup failures are indistinguishable to the caller.
func (w *Workflow) AuthenticateUser(ctx context.Context, s *session.Session, username, password string) (string, error) {
	if err := s.BeginAuth(); err != nil {
		return "", err
	}

	user, err := w.Store.GetActiveAppUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("auth: user lookup: %v", err)
		}
		s.AbortAuth()
		return "", ErrInvalidCredential
	}
	if !user.Active || !CheckPassword(user.PasswordHash, password) {
		s.AbortAuth()
		return "", ErrInvalidCredential
	}

	if err := s.Login(user.ID, models.RoleGirlfriend, user.OwnerID); err != nil {
		return "", err
	}
	chatID, err := w.DM.ResolveFor(ctx, user)
	if err != nil {
		return "", fmt.Errorf("resolve dm: %w", err)
	}
	return chatID, nil
}
