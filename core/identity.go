package core

import (
	"strings"
	"time"
)

// User is the identity root: one row per wallet, created on the first
// successful challenge verification or pre-seeded at startup.
type User struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"walletAddress"` // lowercase-normalized, unique
	DID           string    `json:"did"`
	DisplayName   string    `json:"displayName"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Challenge is a proof-of-possession request. It transitions
// ISSUED -> VERIFIED exactly once; rows are kept for audit, never deleted.
type Challenge struct {
	Nonce         string     `json:"nonce"` // unique, opaque, single-use
	WalletAddress string     `json:"walletAddress"`
	DID           string     `json:"did"`
	Message       string     `json:"message"` // exact string the wallet must sign
	IssuedAt      time.Time  `json:"issuedAt"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	VerifiedAt    *time.Time `json:"verifiedAt,omitempty"`
	UserID        string     `json:"userId,omitempty"`
}

// Expired reports whether the challenge can no longer be verified.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Consumed reports whether the challenge has already been verified.
func (c *Challenge) Consumed() bool {
	return c.VerifiedAt != nil
}

// Session is a bearer credential for authenticated calls. Sessions are
// fixed-duration: expiry is set at issuance and never extended.
type Session struct {
	Token      string     `json:"token"` // high-entropy opaque secret, unique
	UserID     string     `json:"userId"`
	Nonce      string     `json:"nonce"` // challenge that was consumed to mint this session
	IssuedAt   time.Time  `json:"issuedAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
	LastUsedAt time.Time  `json:"lastUsedAt"`
	IPAddress  string     `json:"ipAddress,omitempty"`
	UserAgent  string     `json:"userAgent,omitempty"`
}

// Valid reports whether the session is usable: not revoked and not expired.
func (s *Session) Valid(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// NormalizeAddress lowercases a wallet address for storage and comparison.
// All address and DID equality checks in the service layer go through this.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// NormalizeDID lowercases a DID for storage and comparison.
func NormalizeDID(did string) string {
	return strings.ToLower(strings.TrimSpace(did))
}
