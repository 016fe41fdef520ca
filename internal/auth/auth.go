package auth

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	errors "github.com/frahmantamala/payment-hub/internal"
)

// Claims represents JWT token claims. Tokens are issued by the identity
// provider fronting the back office; the hub only verifies them.
type Claims struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// User builds the principal carried through the request context.
func (c *Claims) User() (*User, error) {
	id, err := strconv.ParseInt(c.UserID, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.ErrInvalidToken.WithCause(fmt.Errorf("user_id %q is not a positive integer", c.UserID))
	}
	return &User{ID: id, Email: c.Email, Permissions: c.Permissions}, nil
}

type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// JWTTokenGenerator signs and verifies HS256 access tokens.
type JWTTokenGenerator struct {
	Secret         []byte
	Issuer         string
	AccessTokenTTL time.Duration
}

func NewJWTTokenGenerator(secret, issuer string, ttl time.Duration) *JWTTokenGenerator {
	return &JWTTokenGenerator{
		Secret:         []byte(secret),
		Issuer:         issuer,
		AccessTokenTTL: ttl,
	}
}

// GenerateAccessToken creates a new access token. Used by the CLI to mint
// operator tokens and by tests.
func (j *JWTTokenGenerator) GenerateAccessToken(userID int64, email string, permissions []string) (string, error) {
	now := time.Now()
	id := strconv.FormatInt(userID, 10)

	claims := &Claims{
		UserID:      id,
		Email:       email,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.Issuer,
			Subject:   id,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

// ValidateToken validates a JWT token and returns claims
func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if j.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return j.Secret, nil
	}, opts...)
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.ErrTokenExpired
		}
		return nil, errors.ErrInvalidToken.WithCause(err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.ErrInvalidToken
}
