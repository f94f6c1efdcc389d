package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/milsabores/identity-service/internal/core/domain"
	"github.com/milsabores/identity-service/internal/core/ports"
)

// TokenTTL is the fixed lifetime of every issued token.
const TokenTTL = 24 * time.Hour

var errEmptySecret = errors.New("jwt secret must be provided")

// Claims is the payload carried by identity tokens.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type jwtService struct {
	secret []byte
	now    func() time.Time
}

// Option customises a token service.
type Option func(*jwtService)

// WithClock replaces the wall clock used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(s *jwtService) { s.now = now }
}

// NewJWTService returns an HS256 token service bound to secret. The secret is
// copied and never changes for the lifetime of the service.
func NewJWTService(secret string, opts ...Option) (ports.TokenService, error) {
	if secret == "" {
		return nil, errEmptySecret
	}
	s := &jwtService{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *jwtService) Issue(subjectID, email string) (string, error) {
	now := s.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *jwtService) Validate(token, expectedSubjectID string) bool {
	claims, err := s.parse(token)
	if err != nil {
		return false
	}
	return claims.Subject != "" && claims.Subject == expectedSubjectID
}

func (s *jwtService) SubjectOf(token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *jwtService) EmailOf(token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}
	return claims.Email, nil
}

// parse verifies signature, algorithm and expiry. Every failure collapses to
// domain.ErrInvalidToken.
func (s *jwtService) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}
