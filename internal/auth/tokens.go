package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const AccessTokenExpiry = 15 * time.Minute

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// UserClaims is the identity carried by both token kinds.
type UserClaims struct {
	Username string
	Name     string
}

type Claims struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

func (c *Claims) User() UserClaims {
	return UserClaims{Username: c.Username, Name: c.Name}
}

// TokenIssuer signs and verifies access and refresh tokens. The two kinds use
// separate secrets so a token of one kind never validates as the other.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	now           func() time.Time
}

func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL time.Duration) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = AccessTokenExpiry
	}
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		now:           time.Now,
	}
}

// SetClock replaces the time source used for issuing and validating tokens.
func (i *TokenIssuer) SetClock(now func() time.Time) {
	i.now = now
}

// IssueAccessToken signs user with the access secret, expiring after the access TTL.
func (i *TokenIssuer) IssueAccessToken(user UserClaims) (string, error) {
	now := i.now()
	claims := &Claims{
		Username: user.Username,
		Name:     user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.accessSecret)
}

// SignRefreshToken signs user with the refresh secret. The token has no
// expiry; it stays usable while its store record exists.
func (i *TokenIssuer) SignRefreshToken(user UserClaims) (string, error) {
	claims := &Claims{
		Username: user.Username,
		Name:     user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(i.now()),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshSecret)
}

func (i *TokenIssuer) ValidateAccessToken(tokenString string) (*Claims, error) {
	return i.parse(tokenString, i.accessSecret, jwt.WithExpirationRequired())
}

func (i *TokenIssuer) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return i.parse(tokenString, i.refreshSecret)
}

func (i *TokenIssuer) parse(tokenString string, secret []byte, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid || claims.Username == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
