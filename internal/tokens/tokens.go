package tokens

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sqlbots/license-admin/internal/revocation"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"

	AccessTTL  = 15 * time.Minute
	RefreshTTL = 7 * 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid token")

// AdminPayload is the identity carried inside every token. Immutable once
// issued; sourced from the admins table at login.
type AdminPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Level int    `json:"level"`
}

// AdminClaims is the signed claim set. Typ distinguishes access from refresh
// tokens; tokens issued before the discriminator existed have an empty Typ and
// are accepted as access tokens.
type AdminClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Level int    `json:"level"`
	Typ   string `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

type Service struct {
	JWTSecret     []byte
	RefreshSecret []byte
	Revocations   *revocation.Store
}

func NewService(jwtSecret []byte, revocations *revocation.Store) *Service {
	return &Service{
		JWTSecret:     jwtSecret,
		RefreshSecret: DeriveRefreshSecret(jwtSecret),
		Revocations:   revocations,
	}
}

// DeriveRefreshSecret produces the refresh-token signing key from the primary
// secret. Distinct from it, so an access token can never pass refresh checks.
func DeriveRefreshSecret(jwtSecret []byte) []byte {
	sum := sha256.Sum256(append([]byte("refresh:"), jwtSecret...))
	return sum[:]
}

func (s *Service) SignAccessToken(admin AdminPayload) (string, error) {
	return s.sign(admin, TypeAccess, AccessTTL, s.JWTSecret)
}

func (s *Service) SignRefreshToken(admin AdminPayload) (string, error) {
	return s.sign(admin, TypeRefresh, RefreshTTL, s.RefreshSecret)
}

func (s *Service) GenerateTokens(admin AdminPayload) (string, string, error) {
	access, err := s.SignAccessToken(admin)
	if err != nil {
		return "", "", err
	}
	refresh, err := s.SignRefreshToken(admin)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (s *Service) sign(admin AdminPayload, typ string, ttl time.Duration, secret []byte) (string, error) {
	claims := AdminClaims{
		Email: admin.Email,
		Role:  admin.Role,
		Level: admin.Level,
		Typ:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   admin.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}

// VerifyAccessToken returns the admin identity or an error. Signature, expiry,
// token type and revocation all collapse into the same failure so callers
// cannot leak which check rejected the token.
func (s *Service) VerifyAccessToken(ctx context.Context, rawToken string) (*AdminPayload, error) {
	return s.verify(ctx, rawToken, TypeAccess, s.JWTSecret)
}

func (s *Service) VerifyRefreshToken(ctx context.Context, rawToken string) (*AdminPayload, error) {
	return s.verify(ctx, rawToken, TypeRefresh, s.RefreshSecret)
}

func (s *Service) verify(ctx context.Context, rawToken, wantTyp string, secret []byte) (*AdminPayload, error) {
	var claims AdminClaims
	tkn, err := jwt.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return secret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, ErrInvalidToken
	}

	typ := claims.Typ
	if typ == "" {
		// Legacy untyped token, only ever valid as an access token.
		typ = TypeAccess
	}
	if typ != wantTyp {
		return nil, ErrInvalidToken
	}

	revoked, err := s.Revocations.IsRevoked(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}

	return &AdminPayload{
		ID:    claims.Subject,
		Email: claims.Email,
		Role:  claims.Role,
		Level: claims.Level,
	}, nil
}
