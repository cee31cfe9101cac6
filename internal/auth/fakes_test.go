package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/openblog/backend/internal/db"
)

type memUserStore struct {
	mu    sync.Mutex
	users map[string]*db.User
	// creates counts successful inserts.
	creates int
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*db.User)}
}

func (s *memUserStore) Create(ctx context.Context, user *db.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Username]; ok {
		return db.ErrUsernameExists
	}
	u := *user
	s.users[user.Username] = &u
	s.creates++
	return nil
}

func (s *memUserStore) GetByUsername(ctx context.Context, username string) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, db.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memUserStore) delete(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, username)
}

// racingUserStore hides existing users from the pre-check, the way a
// concurrent signup would.
type racingUserStore struct {
	*memUserStore
}

func (s racingUserStore) GetByUsername(ctx context.Context, username string) (*db.User, error) {
	return nil, db.ErrUserNotFound
}

type memTokenStore struct {
	mu     sync.Mutex
	hashes map[string]time.Time
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{hashes: make(map[string]time.Time)}
}

func (s *memTokenStore) Create(ctx context.Context, token *db.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[token.TokenHash] = token.CreatedAt
	return nil
}

func (s *memTokenStore) Exists(ctx context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.hashes[tokenHash]
	return ok, nil
}

func (s *memTokenStore) DeleteByHash(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hashes[tokenHash]; !ok {
		return db.ErrTokenNotFound
	}
	delete(s.hashes, tokenHash)
	return nil
}

func (s *memTokenStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hashes)
}

const (
	testAccessSecret  = "access-secret-for-tests"
	testRefreshSecret = "refresh-secret-for-tests"
)

type testEnv struct {
	users  *memUserStore
	tokens *memTokenStore
	issuer *TokenIssuer
	svc    *Service
}

func newTestEnv() *testEnv {
	users := newMemUserStore()
	tokens := newMemTokenStore()
	issuer := NewTokenIssuer(testAccessSecret, testRefreshSecret, AccessTokenExpiry)
	return &testEnv{
		users:  users,
		tokens: tokens,
		issuer: issuer,
		svc:    NewService(users, tokens, NewPasswordHasher(bcrypt.MinCost), issuer),
	}
}

type countingEvents struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingEvents) IncCounter(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[name]++
}

func (c *countingEvents) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}
