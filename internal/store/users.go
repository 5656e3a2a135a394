package store

import (
	"context"
	"fmt"
	"strings"

	"support360/internal/models"
)

// UserInput 创建用户请求
type UserInput struct {
	Name     string      `json:"name" binding:"required"`
	Email    string      `json:"email" binding:"required,email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role" binding:"required"`
	IsActive *bool       `json:"is_active"`
}

// UserPatch 更新用户请求. Role, id and created_at cannot be changed.
type UserPatch struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	IsActive *bool   `json:"is_active"`
}

// GetUsers returns every user, or only those with the given role.
func (s *Store) GetUsers(role *models.Role) []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		if role == nil || u.Role == *role {
			out = append(out, u)
		}
	}
	return out
}

func (s *Store) GetUser(id uint) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.userIndex(id); i >= 0 {
		u := s.users[i]
		return &u, nil
	}
	return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
}

// GetUserByEmail matches case-insensitively.
func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.emailIndex(email); i >= 0 {
		u := s.users[i]
		return &u, nil
	}
	return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
}

// GetAvailableAgents returns every user with the agent role.
func (s *Store) GetAvailableAgents() []models.User {
	role := models.RoleAgent
	return s.GetUsers(&role)
}

func (s *Store) CreateUser(ctx context.Context, in UserInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.Name == "" || in.Email == "" {
		return nil, fmt.Errorf("name and email are required: %w", ErrInvalid)
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("role %q: %w", in.Role, ErrInvalid)
	}
	password := in.Password
	if password == "" {
		password = s.opts.DefaultPassword
	}
	hash, err := HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var created models.User
	err = s.mutate(ctx, func() (Event, []string, error) {
		if s.emailIndex(in.Email) >= 0 {
			return Event{}, nil, fmt.Errorf("email %s already registered: %w", in.Email, ErrConflict)
		}
		s.seq.Users++
		created = models.User{
			ID:        s.seq.Users,
			Name:      in.Name,
			Email:     in.Email,
			Password:  hash,
			Role:      in.Role,
			CreatedAt: s.now(),
			AvatarURL: models.AvatarURLFor(in.Name),
			IsActive:  in.IsActive == nil || *in.IsActive,
		}
		s.users = append(s.users, created)
		return Event{Type: EventUserCreated, Payload: created.Profile()}, []string{SlotUsers}, nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateUser(ctx context.Context, id uint, patch UserPatch) (*models.User, error) {
	var hash string
	if patch.Password != nil {
		h, err := HashPassword(*patch.Password, s.opts.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hash = h
	}

	var updated models.User
	err := s.mutate(ctx, func() (Event, []string, error) {
		i := s.userIndex(id)
		if i < 0 {
			return Event{}, nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		u := s.users[i]
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return Event{}, nil, fmt.Errorf("name is empty: %w", ErrInvalid)
			}
			u.Name = name
			u.AvatarURL = models.AvatarURLFor(name)
		}
		if patch.Email != nil {
			email := strings.TrimSpace(*patch.Email)
			if email == "" {
				return Event{}, nil, fmt.Errorf("email is empty: %w", ErrInvalid)
			}
			if j := s.emailIndex(email); j >= 0 && j != i {
				return Event{}, nil, fmt.Errorf("email %s already registered: %w", email, ErrConflict)
			}
			u.Email = email
		}
		if hash != "" {
			u.Password = hash
		}
		if patch.IsActive != nil {
			u.IsActive = *patch.IsActive
		}
		s.users[i] = u
		updated = u
		return Event{Type: EventUserUpdated, Payload: u.Profile()}, []string{SlotUsers}, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteUser removes the user. Tickets and messages referencing it are left in place.
func (s *Store) DeleteUser(ctx context.Context, id uint) error {
	return s.mutate(ctx, func() (Event, []string, error) {
		i := s.userIndex(id)
		if i < 0 {
			return Event{}, nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		removed := s.users[i]
		s.users = append(s.users[:i], s.users[i+1:]...)
		return Event{Type: EventUserDeleted, Payload: removed.Profile()}, []string{SlotUsers}, nil
	})
}

func (s *Store) userIndex(id uint) int {
	for i := range s.users {
		if s.users[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) emailIndex(email string) int {
	for i := range s.users {
		if strings.EqualFold(s.users[i].Email, email) {
			return i
		}
	}
	return -1
}
