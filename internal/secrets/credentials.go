// Package secrets provides credential lookup for the external agent
// service. Lookup is a pure function of the stored blob and the current
// time; callers treat absence as "authentication unavailable", never as a
// fatal fault.
package secrets

import (
	"encoding/json"
	"time"
)

// Credential is a stored token with an optional expiry.
type Credential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Valid reports whether the credential is usable at the given instant.
// A zero expiry means the token does not expire.
func (c Credential) Valid(now time.Time) bool {
	if c.Token == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt)
}

// Lookup parses a stored credential blob and returns the token valid at
// now, or ok=false when none is usable. Malformed blobs are treated as
// absent.
func Lookup(blob []byte, now time.Time) (token string, ok bool) {
	if len(blob) == 0 {
		return "", false
	}
	var c Credential
	if err := json.Unmarshal(blob, &c); err != nil {
		return "", false
	}
	if !c.Valid(now) {
		return "", false
	}
	return c.Token, true
}
