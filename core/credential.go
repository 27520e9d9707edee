package core

import (
	"encoding/json"
	"time"
)

// CredentialStatus is the lifecycle state of a stored credential.
type CredentialStatus string

const (
	CredentialPending  CredentialStatus = "PENDING"
	CredentialVerified CredentialStatus = "VERIFIED"
	CredentialRevoked  CredentialStatus = "REVOKED"
)

// Credential is a verified claim about a user. At most one row exists per
// (UserID, Type); later verifications upsert in place.
type Credential struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      string           `json:"type"`
	Issuer    string           `json:"issuer"`
	Hash      string           `json:"hash"` // canonical hash of the payload
	Status    CredentialStatus `json:"status"`
	IssuedAt  time.Time        `json:"issuedAt"`
	RevokedAt *time.Time       `json:"revokedAt,omitempty"`
	Metadata  string           `json:"metadata,omitempty"` // vault-encrypted payload blob
}

// AnchorRecord mirrors a subject's on-chain credential record. It is
// read-only: the chain is only ever consulted as a comparison oracle.
// IssuedAt of zero means the subject has no record.
type AnchorRecord struct {
	CredentialHash string `json:"credentialHash"`
	LabID          uint64 `json:"labId"`
	Revoked        bool   `json:"revoked"`
	IssuedAt       uint64 `json:"issuedAt"`
}

// Proof is the embedded proof block of a submitted credential. Only
// presence and purpose are checked here; signature bytes are opaque.
type Proof struct {
	Type               string `json:"type,omitempty"`
	ProofPurpose       string `json:"proofPurpose,omitempty"`
	Challenge          string `json:"challenge,omitempty"`
	VerificationMethod string `json:"verificationMethod,omitempty"`
	ProofValue         string `json:"proofValue,omitempty"`
	Created            string `json:"created,omitempty"`
}

// CredentialEnvelope is the typed shape a submitted credential JSON must
// bind to before any business rule reads from it. Unknown or malformed
// documents are rejected at decode time rather than probed field by field.
type CredentialEnvelope struct {
	Context           json.RawMessage        `json:"@context,omitempty"`
	ID                string                 `json:"id,omitempty"`
	Type              TypeField              `json:"type"`
	Issuer            string                 `json:"issuer"`
	IssuanceDate      string                 `json:"issuanceDate,omitempty"`
	ExpirationDate    string                 `json:"expirationDate,omitempty"`
	CredentialSubject map[string]interface{} `json:"credentialSubject"`
	Proof             *Proof                 `json:"proof,omitempty"`
}

// TypeField accepts both the W3C array form ("type": ["VerifiableCredential",
// "ResearcherCredential"]) and a bare string.
type TypeField []string

func (t *TypeField) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = TypeField{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*t = TypeField(many)
	return nil
}

func (t TypeField) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(t))
}
