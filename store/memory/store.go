// Package memory is an in-process tenantauth.CredentialStore for tests,
// local development and the load tester.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/tenantauth"
)

type Store struct {
	mu        sync.RWMutex
	users     map[string]tenantauth.UserRecord
	byEmail   map[string]string
	roles     map[string]tenantauth.Role
	links     map[string][]string
	companies map[string]struct{}
}

var _ tenantauth.CredentialStore = (*Store)(nil)

func New() *Store {
	return &Store{
		users:     map[string]tenantauth.UserRecord{},
		byEmail:   map[string]string{},
		roles:     map[string]tenantauth.Role{},
		links:     map[string][]string{},
		companies: map[string]struct{}{},
	}
}

// AddCompany registers a company id so users can reference it.
func (s *Store) AddCompany(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies[id] = struct{}{}
}

// AddRole registers r together with its permission links.
func (s *Store) AddRole(r tenantauth.Role, perms ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[r.ID] = r
	s.links[r.ID] = append([]string(nil), perms...)
}

// PutUser stores u as is, bypassing role and company checks.
func (s *Store) PutUser(u tenantauth.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.users[u.UserID]; ok {
		delete(s.byEmail, old.Email)
	}
	s.users[u.UserID] = u
	s.byEmail[u.Email] = u.UserID
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (tenantauth.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return tenantauth.UserRecord{}, tenantauth.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetUserByID(_ context.Context, userID string) (tenantauth.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return tenantauth.UserRecord{}, tenantauth.ErrUserNotFound
	}
	return u, nil
}

// CreateUser applies the same role and company rules as the Postgres store.
func (s *Store) CreateUser(_ context.Context, in tenantauth.CreateUserInput) (tenantauth.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[in.Email]; taken {
		return tenantauth.UserRecord{}, tenantauth.ErrEmailTaken
	}
	role, ok := s.roles[in.RoleID]
	if !ok {
		return tenantauth.UserRecord{}, tenantauth.ErrRoleNotFound
	}
	if role.TenantScoped != (in.CompanyID != "") {
		return tenantauth.UserRecord{}, tenantauth.ErrInvalidUser
	}
	if in.CompanyID != "" {
		if _, ok := s.companies[in.CompanyID]; !ok {
			return tenantauth.UserRecord{}, tenantauth.ErrInvalidUser
		}
	}

	u := tenantauth.UserRecord{
		UserID:       in.UserID,
		Email:        in.Email,
		RoleID:       in.RoleID,
		CompanyID:    in.CompanyID,
		PasswordHash: in.PasswordHash,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[u.UserID] = u
	s.byEmail[u.Email] = u.UserID
	return u, nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return tenantauth.ErrUserNotFound
	}
	u.PasswordHash = hash
	s.users[userID] = u
	return nil
}

func (s *Store) SetUserActive(_ context.Context, userID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return tenantauth.ErrUserNotFound
	}
	u.Active = active
	s.users[userID] = u
	return nil
}

func (s *Store) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return tenantauth.ErrUserNotFound
	}
	delete(s.users, userID)
	delete(s.byEmail, u.Email)
	return nil
}

func (s *Store) GetRole(_ context.Context, roleID string) (tenantauth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID]
	if !ok {
		return tenantauth.Role{}, tenantauth.ErrRoleNotFound
	}
	return r, nil
}

func (s *Store) PermissionsForRole(_ context.Context, roleID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.links[roleID]...), nil
}
