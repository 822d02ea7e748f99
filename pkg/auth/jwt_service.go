package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/trimline/trimline/config"
	"github.com/trimline/trimline/internal/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

type customClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService issues and validates access tokens.
type AuthService interface {
	GenerateAccessToken(userID, role string) (string, error)
	ValidateToken(token string) (*domain.AuthClaims, error)
}

// JWTAuthService implements AuthService with HS256 JWTs.
type JWTAuthService struct {
	cfg config.AuthConfig
}

// NewJWTAuthService creates a new auth service instance
func NewJWTAuthService(cfg config.AuthConfig) *JWTAuthService {
	return &JWTAuthService{cfg: cfg}
}

func (s *JWTAuthService) accessTTL() time.Duration {
	if s.cfg.AccessTokenTTL <= 0 {
		return 24 * time.Hour
	}
	return s.cfg.AccessTokenTTL
}

// GenerateAccessToken creates a signed JWT access token for the given subject
func (s *JWTAuthService) GenerateAccessToken(userID, role string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("invalid user payload")
	}

	now := time.Now()
	claims := &customClaims{
		Role: strings.ToUpper(strings.TrimSpace(role)),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL())),
			ID:        fmt.Sprintf("%s-%d", userID, now.UnixNano()),
		},
	}
	if audience := strings.TrimSpace(s.cfg.Audience); audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.AccessSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and validates a JWT token and returns AuthClaims
func (s *JWTAuthService) ValidateToken(token string) (*domain.AuthClaims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &customClaims{}
	options := []jwt.ParserOption{jwt.WithIssuedAt(), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name})}
	if iss := strings.TrimSpace(s.cfg.Issuer); iss != "" {
		options = append(options, jwt.WithIssuer(iss))
	}
	if aud := strings.TrimSpace(s.cfg.Audience); aud != "" {
		options = append(options, jwt.WithAudience(aud))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.AccessSecret), nil
	}, options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	role := strings.ToUpper(claims.Role)
	if role == "" {
		role = domain.RoleCustomer
	}

	return &domain.AuthClaims{
		UserID:    claims.Subject,
		Role:      role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
