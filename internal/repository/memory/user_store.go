package memory

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/eventhub-tickets/internal/model"
	"github.com/iliyamo/eventhub-tickets/internal/repository"
	"github.com/iliyamo/eventhub-tickets/internal/utils"
)

// UserStore is the in-memory counterpart of repository.UserRepo.
type UserStore struct {
	mu     sync.RWMutex
	nextID uint64
	byName map[string]*model.User
}

func NewUserStore() *UserStore {
	return &UserStore{byName: make(map[string]*model.User)}
}

func (s *UserStore) Create(_ context.Context, username, password, role string, cost int) (uint64, error) {
	username = repository.NormalizeUsername(username)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[username]; ok {
		return 0, repository.ErrUsernameExists
	}
	s.nextID++
	now := time.Now().UTC()
	s.byName[username] = &model.User{
		ID: s.nextID, Username: username, PasswordHash: hash, Role: role,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	return s.nextID, nil
}

func (s *UserStore) GetByUsername(_ context.Context, username string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byName[repository.NormalizeUsername(username)]
	if !ok {
		return model.User{}, repository.ErrUserNotFound
	}
	return *u, nil
}

func (s *UserStore) GetByID(_ context.Context, id uint64) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.byName {
		if u.ID == id {
			return *u, nil
		}
	}
	return model.User{}, repository.ErrUserNotFound
}

// TokenStore is the in-memory counterpart of repository.TokenRepo.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]*model.RefreshToken
	now    func() time.Time
}

func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]*model.RefreshToken),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *TokenStore) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[tokenHash]; ok {
		return repository.ErrConflict
	}
	s.tokens[tokenHash] = &model.RefreshToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: exp, CreatedAt: s.now()}
	return nil
}

func (s *TokenStore) ValidateRefresh(_ context.Context, tokenHash string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenHash]
	if !ok || t.RevokedAt != nil || s.now().After(t.ExpiresAt) {
		return 0, repository.ErrTokenInvalid
	}
	return t.UserID, nil
}

func (s *TokenStore) RevokeByHash(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[tokenHash]; ok && t.RevokedAt == nil {
		now := s.now()
		t.RevokedAt = &now
	}
	return nil
}

func (s *TokenStore) RevokeAllForUser(_ context.Context, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, t := range s.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}
