package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const HeaderName = "X-CSRF-Token"

// Manager issues and verifies stateless HMAC tokens: base64(nonce).hex(mac).
// Nothing is stored server-side, the secret alone validates.
type Manager struct {
	Secret []byte
}

func NewManager(secret string) *Manager {
	return &Manager{Secret: []byte(secret)}
}

func (m *Manager) GenerateToken() (string, error) {
	nonce := make([]byte, 18)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(nonce)
	return encoded + "." + m.sign(encoded), nil
}

func (m *Manager) VerifyToken(token string) bool {
	if token == "" {
		return false
	}
	nonce, mac, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}
	return hmac.Equal([]byte(m.sign(nonce)), []byte(mac))
}

func (m *Manager) sign(nonce string) string {
	h := hmac.New(sha256.New, m.Secret)
	h.Write([]byte(nonce))
	return hex.EncodeToString(h.Sum(nil))
}

// Middleware enforces the token header on mutating requests. Safe methods and
// the configured paths (login, refresh, health) pass through.
func Middleware(m *Manager, skipPaths []string) echo.MiddlewareFunc {
	skip := map[string]struct{}{}
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			if _, ok := skip[req.URL.Path]; ok {
				return next(c)
			}

			switch req.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			token := req.Header.Get(HeaderName)
			if token == "" {
				return echo.NewHTTPError(http.StatusForbidden, "CSRF token is required")
			}
			if !m.VerifyToken(token) {
				return echo.NewHTTPError(http.StatusForbidden, "Invalid CSRF token")
			}

			return next(c)
		}
	}
}
