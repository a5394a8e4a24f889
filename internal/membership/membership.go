// Package membership tracks whose room the viewer is in.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sharetube/roomsync/pkg/validator"
)

var (
	ErrNoIdentity   = errors.New("viewer identity is not configured")
	ErrJoinOwnRoom  = errors.New("cannot join own room")
	ErrInvalidEmail = errors.New("invalid owner email")
)

type Role int

const (
	RoleNone Role = iota
	RoleOwner
	RoleFollower
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "OWNER"
	case RoleFollower:
		return "FOLLOWER"
	default:
		return "NONE"
	}
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func ParseRole(s string) Role {
	switch strings.ToUpper(s) {
	case "OWNER":
		return RoleOwner
	case "FOLLOWER":
		return RoleFollower
	default:
		return RoleNone
	}
}

type Membership struct {
	Role             Role   `json:"role"`
	OwnerEmail       string `json:"ownerEmail,omitempty"`
	OwnerDisplayName string `json:"ownerDisplayName,omitempty"`
}

type Store interface {
	SaveMembership(ctx context.Context, m Membership) error
	LoadMembership(ctx context.Context) (Membership, bool, error)
}

// Manager owns the membership record. It is not safe for concurrent use; the
// event loop serializes access.
type Manager struct {
	self     string
	current  Membership
	store    Store
	validate *validator.Validator
	logger   *slog.Logger
}

func NewManager(selfEmail string, store Store, logger *slog.Logger) *Manager {
	m := &Manager{
		self:     selfEmail,
		store:    store,
		validate: validator.NewValidator(),
		logger:   logger,
	}
	m.current = m.home()

	return m
}

func (m *Manager) Self() string {
	return m.self
}

func (m *Manager) Current() Membership {
	return m.current
}

func (m *Manager) Role() Role {
	return m.current.Role
}

// OwnerEmail is the owner of the room the viewer is in, which is the viewer
// itself while owning.
func (m *Manager) OwnerEmail() string {
	return m.current.OwnerEmail
}

// Restore reloads the persisted membership.
func (m *Manager) Restore(ctx context.Context) (Membership, error) {
	saved, ok, err := m.store.LoadMembership(ctx)
	if err != nil {
		return m.current, fmt.Errorf("failed to load membership: %w", err)
	}
	if !ok || saved.Role != RoleFollower || m.self == "" ||
		strings.EqualFold(saved.OwnerEmail, m.self) || !m.validate.Email(saved.OwnerEmail) {
		m.current = m.home()
		return m.current, nil
	}

	m.current = saved
	m.logger.InfoContext(ctx, "membership restored", "owner_email", saved.OwnerEmail)

	return m.current, nil
}

// Join records the viewer as a follower of ownerEmail and persists it.
func (m *Manager) Join(ctx context.Context, ownerEmail, displayName string) error {
	if m.self == "" {
		return ErrNoIdentity
	}
	if !m.validate.Email(ownerEmail) {
		return ErrInvalidEmail
	}
	if strings.EqualFold(ownerEmail, m.self) {
		return ErrJoinOwnRoom
	}

	m.current = Membership{
		Role:             RoleFollower,
		OwnerEmail:       ownerEmail,
		OwnerDisplayName: displayName,
	}
	m.persist(ctx)

	return nil
}

// Leave returns the viewer to its own room.
func (m *Manager) Leave(ctx context.Context) Membership {
	previous := m.current
	m.current = m.home()
	m.persist(ctx)

	return previous
}

func (m *Manager) home() Membership {
	if m.self == "" {
		return Membership{Role: RoleNone}
	}
	return Membership{Role: RoleOwner, OwnerEmail: m.self}
}

func (m *Manager) persist(ctx context.Context) {
	if err := m.store.SaveMembership(ctx, m.current); err != nil {
		m.logger.ErrorContext(ctx, "failed to save membership", "error", err)
	}
}
