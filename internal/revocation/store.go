package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/sqlbots/license-admin/internal/logging"
	"github.com/sqlbots/license-admin/internal/models"
)

const fallbackTTL = 7 * 24 * time.Hour

// SweepInterval is how often StartSweeper prunes expired entries.
const SweepInterval = 5 * time.Minute

// Store keeps sha256 digests of revoked tokens. A token is revoked iff a row
// with its digest exists, independent of the row's own expiry.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func Sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Revoke is best-effort: insert failures are logged and swallowed so that
// logout never fails because of revocation bookkeeping.
func (s *Store) Revoke(ctx context.Context, rawToken string) {
	entry := models.RevokedToken{
		TokenHash: Sha256Hex(rawToken),
		ExpiresAt: tokenExpiry(rawToken),
	}
	if err := s.DB.WithContext(ctx).Create(&entry).Error; err != nil {
		logging.FromContext(ctx).Error("failed to store revoked token", "error", err)
	}
}

func (s *Store) IsRevoked(ctx context.Context, rawToken string) (bool, error) {
	var stored models.RevokedToken
	err := s.DB.WithContext(ctx).
		Where("token_hash = ?", Sha256Hex(rawToken)).
		First(&stored).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Sweep deletes entries whose recorded expiry has passed. A revoked token past
// its own exp fails signature validation anyway, so pruning is safe.
func (s *Store) Sweep(ctx context.Context) error {
	return s.DB.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&models.RevokedToken{}).Error
}

func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Sweep(ctx); err != nil {
					logging.FromContext(ctx).Error("revoked token sweep failed", "error", err)
				}
			}
		}
	}()
}

// tokenExpiry reads the exp claim without verifying the signature. Undecodable
// tokens get the refresh-token lifetime so the record outlives anything valid.
func tokenExpiry(rawToken string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(rawToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(fallbackTTL)
}
