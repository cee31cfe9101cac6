package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openblog/backend/internal/db"
)

var (
	ErrUsernameTaken   = errors.New("username already exists")
	ErrUnknownUsername = errors.New("unknown username")
	ErrWrongPassword   = errors.New("wrong password")
)

// UserStore is the credential store the service reads and writes.
type UserStore interface {
	Create(ctx context.Context, user *db.User) error
	GetByUsername(ctx context.Context, username string) (*db.User, error)
}

// TokenStore holds one record per issued refresh token.
type TokenStore interface {
	Create(ctx context.Context, token *db.RefreshToken) error
	Exists(ctx context.Context, tokenHash string) (bool, error)
	DeleteByHash(ctx context.Context, tokenHash string) error
}

type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Name         string `json:"name"`
	Username     string `json:"username"`
}

type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
	Name        string `json:"name"`
	Username    string `json:"username"`
}

type Service struct {
	users  UserStore
	tokens TokenStore
	hasher *PasswordHasher
	issuer *TokenIssuer
}

func NewService(users UserStore, tokens TokenStore, hasher *PasswordHasher, issuer *TokenIssuer) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		issuer: issuer,
	}
}

// Signup creates a user. The store's unique index decides races that slip
// past the pre-check.
func (s *Service) Signup(ctx context.Context, name, username, password string) error {
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, db.ErrUserNotFound) {
		return err
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	user := &db.User{
		ID:           uuid.New(),
		Name:         name,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, db.ErrUsernameExists) {
			return ErrUsernameTaken
		}
		return err
	}

	return nil
}

func (s *Service) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, ErrUnknownUsername
		}
		return nil, err
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWrongPassword
	}

	claims := UserClaims{Username: user.Username, Name: user.Name}
	accessToken, err := s.issuer.IssueAccessToken(claims)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.IssueRefreshToken(ctx, claims)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Name:         user.Name,
		Username:     user.Username,
	}, nil
}

// IssueRefreshToken signs a refresh token and records it in the token store.
func (s *Service) IssueRefreshToken(ctx context.Context, claims UserClaims) (string, error) {
	token, err := s.issuer.SignRefreshToken(claims)
	if err != nil {
		return "", err
	}

	record := &db.RefreshToken{
		ID:        uuid.New(),
		TokenHash: hashToken(token),
		CreatedAt: time.Now(),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return "", err
	}

	return token, nil
}

// Refresh mints a new access token from a refresh token that verifies
// against the refresh secret and still has a store record. Claims come from
// the current user record, not the token. The refresh token is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	claims, err := s.issuer.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	exists, err := s.tokens.Exists(ctx, hashToken(refreshToken))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByUsername(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	accessToken, err := s.issuer.IssueAccessToken(UserClaims{Username: user.Username, Name: user.Name})
	if err != nil {
		return nil, err
	}

	return &RefreshResponse{
		AccessToken: accessToken,
		Name:        user.Name,
		Username:    user.Username,
	}, nil
}

// Logout deletes the refresh token's record. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	err := s.tokens.DeleteByHash(ctx, hashToken(refreshToken))
	if err != nil && !errors.Is(err, db.ErrTokenNotFound) {
		return err
	}
	return nil
}

func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.issuer.ValidateAccessToken(tokenString)
}
