package license

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/sqlbots/license-admin/internal/models"
)

// Alphabet excludes visually ambiguous characters (0/O, 1/I).
const keyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const segmentLength = 4

// MaxKeyAttempts bounds the uniqueness-retry loop per license.
const MaxKeyAttempts = 10

func keyPrefix(planType string) string {
	if planType == models.Plan90d {
		return "SQLBots90"
	}
	return "SQLBots30"
}

// GenerateKey returns a key of the form "SQLBots30-XXXX-XXXX". Uniqueness is
// the caller's problem: generate, probe the table, retry.
func GenerateKey(planType string) (string, error) {
	seg1, err := randomSegment(segmentLength)
	if err != nil {
		return "", err
	}
	seg2, err := randomSegment(segmentLength)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", keyPrefix(planType), seg1, seg2), nil
}

func randomSegment(length int) (string, error) {
	max := big.NewInt(int64(len(keyAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = keyAlphabet[n.Int64()]
	}
	return string(out), nil
}
