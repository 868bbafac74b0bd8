package breeze

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Signer handles Breeze API checksum authentication
type Signer struct {
	mu      sync.RWMutex
	apiKey  string
	secret  string
	session string
}

// NewSigner creates a new Signer instance
func NewSigner(apiKey, secret string) *Signer {
	return &Signer{apiKey: apiKey, secret: secret}
}

// SetSession stores the session token used on all subsequent requests.
func (s *Signer) SetSession(token string) {
	s.mu.Lock()
	s.session = token
	s.mu.Unlock()
}

// Session returns the current session token.
func (s *Signer) Session() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// GenerateHeaders creates the necessary headers for a request.
// body: json string (use "{}" for body-less calls, the checksum covers it)
//
// The checksum binds timestamp, body and the app secret together:
// SHA256(timestamp + body + secret), hex encoded. The timestamp must be
// the same string sent in X-Timestamp, second precision, UTC.
func (s *Signer) GenerateHeaders(body string) map[string]string {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05") + ".000Z"
	checksum := computeChecksum(timestamp, body, s.secret)

	return map[string]string{
		"Content-Type":   "application/json",
		"X-Checksum":     "token " + checksum,
		"X-Timestamp":    timestamp,
		"X-AppKey":       s.apiKey,
		"X-SessionToken": s.Session(),
	}
}

// Checksum computes the request checksum for a given timestamp and body.
// Exposed so callers can pre-compute or verify signatures.
func Checksum(timestamp, body, secret string) string {
	return computeChecksum(timestamp, body, secret)
}

func computeChecksum(timestamp, body, secret string) string {
	sum := sha256.Sum256([]byte(timestamp + body + secret))
	return hex.EncodeToString(sum[:])
}
