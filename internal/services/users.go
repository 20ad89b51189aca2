package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

var ErrUnknownUser = errors.New("services: unknown user")

// UserDirectory reads contact details from the users table.
type UserDirectory struct {
	db *gorm.DB
}

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

// Contact returns the user row for id.
func (u *UserDirectory) Contact(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := u.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrUnknownUser
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user %s: %w", id, err)
	}
	return user, nil
}

// StaticUsers is an in-memory contact book used in tests and development.
type StaticUsers struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewStaticUsers(users ...models.User) *StaticUsers {
	s := &StaticUsers{users: make(map[string]models.User, len(users))}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *StaticUsers) Put(u models.User) {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
}

func (s *StaticUsers) Contact(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, ErrUnknownUser
	}
	return u, nil
}
