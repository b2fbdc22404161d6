package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// UserClaims represents the JWT claims for user authentication.
// The registered ID claim carries the server-side session id.
type UserClaims struct {
	Email  string    `json:"email"`
	UserID uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

// SessionID returns the session the token was issued for
func (c *UserClaims) SessionID() (uuid.UUID, error) {
	return uuid.Parse(c.ID)
}

// JWTUtil is a utility for JWT token operations
type JWTUtil struct {
	config *JWTConfig
}

// NewJWTUtil creates a new JWT utility with the given configuration
func NewJWTUtil(config *JWTConfig) *JWTUtil {
	return &JWTUtil{
		config: config,
	}
}

// TTL returns how long issued tokens stay valid
func (j *JWTUtil) TTL() time.Duration {
	if j.config == nil {
		return 0
	}
	return time.Duration(j.config.ExpirationHours) * time.Hour
}

// GenerateToken creates a signed token bound to the given session
func (j *JWTUtil) GenerateToken(email string, userID, sessionID uuid.UUID, issuedAt time.Time) (string, error) {
	if j.config == nil {
		return "", errors.New("JWT configuration not provided")
	}

	claims := UserClaims{
		Email:  email,
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID.String(),
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(j.TTL())),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.config.SigningKey))
}

// ValidateToken validates and parses the JWT token
func (j *JWTUtil) ValidateToken(tokenString string) (*UserClaims, error) {
	if j.config == nil {
		return nil, errors.New("JWT configuration not provided")
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&UserClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(j.config.SigningKey), nil
		},
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == uuid.Nil {
		return nil, errors.New("token carries no user")
	}
	if _, err := claims.SessionID(); err != nil {
		return nil, fmt.Errorf("token carries no session: %w", err)
	}

	return claims, nil
}
