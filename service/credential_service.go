package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openscholar/veritas/core"
	"github.com/openscholar/veritas/internal/canon"
	"github.com/openscholar/veritas/internal/vault"
	"github.com/openscholar/veritas/ports"
)

// genericTypeTag is the W3C wrapper entry skipped when resolving a
// credential's concrete type from its type array.
const genericTypeTag = "VerifiableCredential"

// assertionPurposes are the proofPurpose values accepted when a proof
// block declares one.
var assertionPurposes = map[string]bool{
	"assertionmethod": true,
	"authentication":  true,
}

// CredentialService orchestrates structural validation, canonical hashing,
// on-chain anchor cross-checking, encryption, and persistence of
// verifiable credentials.
type CredentialService struct {
	store  ports.Store
	vault  *vault.Vault
	anchor ports.AnchorReader
	events ports.EventPublisher
	log    zerolog.Logger
}

// NewCredentialService wires the credential verifier. anchor may be nil
// when no anchor contract is configured; verification then always runs
// unanchored.
func NewCredentialService(store ports.Store, v *vault.Vault, anchor ports.AnchorReader, events ports.EventPublisher, log zerolog.Logger) *CredentialService {
	return &CredentialService{
		store:  store,
		vault:  v,
		anchor: anchor,
		events: events,
		log:    log.With().Str("component", "credential").Logger(),
	}
}

// SubmitRequest carries a credential submission.
type SubmitRequest struct {
	UserID          string
	WalletAddress   string
	DID             string
	Credential      json.RawMessage
	IssuerAllowList []string
	ExpectedTypes   []string
}

// VerifyAndStoreCredential runs the full verification pipeline and upserts
// the resulting row keyed by (userID, type). All checks fail fast; no
// partial success is ever reported.
func (s *CredentialService) VerifyAndStoreCredential(ctx context.Context, req SubmitRequest) (*core.Credential, error) {
	envelope, raw, err := decodeEnvelope(req.Credential)
	if err != nil {
		return nil, err
	}

	if err := validateSubject(envelope, req.DID); err != nil {
		return nil, err
	}
	if err := validateIssuer(envelope, req.IssuerAllowList); err != nil {
		return nil, err
	}

	credType, err := resolveType(envelope.Type, req.ExpectedTypes)
	if err != nil {
		return nil, err
	}

	issuedAt, err := resolveIssuanceDate(envelope)
	if err != nil {
		return nil, err
	}

	if err := validateExpiration(envelope); err != nil {
		return nil, err
	}
	if err := validateProof(envelope.Proof); err != nil {
		return nil, err
	}

	hash, err := s.hashCredential(raw)
	if err != nil {
		return nil, err
	}

	if err := s.crossCheckAnchor(ctx, req.WalletAddress, hash); err != nil {
		return nil, err
	}

	encrypted, err := s.vault.Encrypt(raw)
	if err != nil {
		return nil, fmt.Errorf("encrypt credential: %w", err)
	}

	cred := &core.Credential{
		ID:       uuid.New().String(),
		UserID:   req.UserID,
		Type:     credType,
		Issuer:   envelope.Issuer,
		Hash:     hash,
		Status:   core.CredentialVerified,
		IssuedAt: issuedAt,
		Metadata: encrypted,
	}
	if err := s.store.UpsertCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("persist credential: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishCredentialVerified(ctx, req.UserID, credType, hash); err != nil {
			s.log.Warn().Err(err).Msg("failed to publish credential verified event")
		}
	}

	s.log.Info().Str("user", req.UserID).Str("type", credType).Str("hash", hash).Msg("credential verified")
	return cred, nil
}

// CredentialView is a stored credential with its metadata decrypted.
type CredentialView struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Status    core.CredentialStatus  `json:"status"`
	Issuer    string                 `json:"issuer"`
	IssuedAt  time.Time              `json:"issuedAt"`
	RevokedAt *time.Time             `json:"revokedAt,omitempty"`
	Hash      string                 `json:"hash"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ListCredentials returns a user's credentials with metadata decrypted
// through the vault. Rows whose blob fails authentication are surfaced,
// not silently dropped: a corrupted vault is an integrity fault.
func (s *CredentialService) ListCredentials(ctx context.Context, userID string) ([]*CredentialView, error) {
	creds, err := s.store.ListCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]*CredentialView, 0, len(creds))
	for _, c := range creds {
		view := &CredentialView{
			ID:        c.ID,
			Type:      c.Type,
			Status:    c.Status,
			Issuer:    c.Issuer,
			IssuedAt:  c.IssuedAt,
			RevokedAt: c.RevokedAt,
			Hash:      c.Hash,
		}
		if c.Metadata != "" {
			var payload map[string]interface{}
			if err := s.vault.Decrypt(c.Metadata, &payload); err != nil {
				return nil, fmt.Errorf("decrypt credential %s: %w", c.ID, err)
			}
			view.Metadata = payload
		}
		views = append(views, view)
	}
	return views, nil
}

func decodeEnvelope(raw json.RawMessage) (*core.CredentialEnvelope, map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil, core.Rejectf("credential payload is required")
	}

	var envelope core.CredentialEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, nil, core.Rejectf("credential is not a well-formed document: %v", err)
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, nil, core.Rejectf("credential must be a JSON object")
	}
	return &envelope, generic, nil
}

func validateSubject(envelope *core.CredentialEnvelope, did string) error {
	if envelope.CredentialSubject == nil {
		return core.Rejectf("credentialSubject is required")
	}
	subjectID, _ := envelope.CredentialSubject["id"].(string)
	if !strings.EqualFold(subjectID, did) {
		return core.Rejectf("credentialSubject.id does not match authenticated did")
	}
	return nil
}

func validateIssuer(envelope *core.CredentialEnvelope, allowList []string) error {
	if envelope.Issuer == "" {
		return core.Rejectf("issuer is required")
	}
	if len(allowList) > 0 && !containsFold(allowList, envelope.Issuer) {
		return core.Rejectf("issuer %q is not in the allow list", envelope.Issuer)
	}
	return nil
}

func validateExpiration(envelope *core.CredentialEnvelope) error {
	if envelope.ExpirationDate == "" {
		return nil
	}
	expires, err := time.Parse(time.RFC3339, envelope.ExpirationDate)
	if err != nil {
		return core.Rejectf("expirationDate is not a valid timestamp")
	}
	if expires.Before(time.Now()) {
		return core.Rejectf("credential has expired")
	}
	return nil
}

func validateProof(proof *core.Proof) error {
	if proof == nil {
		return nil
	}
	if proof.ProofPurpose != "" && !assertionPurposes[strings.ToLower(proof.ProofPurpose)] {
		return core.Rejectf("proof.proofPurpose %q is not an assertion purpose", proof.ProofPurpose)
	}
	// Presence-only: the challenge is not bound to a session nonce.
	if proof.Challenge == "" {
		return core.Rejectf("proof.challenge is required")
	}
	return nil
}

func resolveType(types core.TypeField, expected []string) (string, error) {
	if len(types) == 0 {
		return "", core.Rejectf("credential type is required")
	}

	resolved := types[0]
	for _, t := range types {
		if !strings.EqualFold(t, genericTypeTag) {
			resolved = t
			break
		}
	}

	if len(expected) > 0 && !containsFold(expected, resolved) {
		return "", core.Rejectf("credential type %q is not accepted", resolved)
	}
	return resolved, nil
}

func resolveIssuanceDate(envelope *core.CredentialEnvelope) (time.Time, error) {
	if envelope.IssuanceDate == "" {
		return time.Now().UTC(), nil
	}
	issued, err := time.Parse(time.RFC3339, envelope.IssuanceDate)
	if err != nil {
		return time.Time{}, core.Rejectf("issuanceDate is not a valid timestamp")
	}
	return issued, nil
}

// hashCredential computes the canonical hash with proof.proofValue
// stripped: the hash represents the claim, not its signature encoding.
func (s *CredentialService) hashCredential(raw map[string]interface{}) (string, error) {
	hashable := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		hashable[k] = v
	}
	if proof, ok := hashable["proof"].(map[string]interface{}); ok {
		stripped := make(map[string]interface{}, len(proof))
		for k, v := range proof {
			if k == "proofValue" {
				continue
			}
			stripped[k] = v
		}
		hashable["proof"] = stripped
	}

	hash, err := canon.Hash(hashable)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	return hash, nil
}

// crossCheckAnchor compares the computed hash against the subject's
// on-chain record when one exists. A revoked anchor is a hard reject
// regardless of hash; a hash mismatch is tamper. No usable anchor means
// unanchored acceptance.
func (s *CredentialService) crossCheckAnchor(ctx context.Context, walletAddress, hash string) error {
	if s.anchor == nil {
		return nil
	}

	record := s.anchor.ReadAnchor(ctx, core.NormalizeAddress(walletAddress))
	if record == nil {
		s.log.Debug().Str("wallet", walletAddress).Msg("no usable anchor, proceeding unanchored")
		return nil
	}

	if record.Revoked {
		return core.Rejectf("credential is revoked on-chain")
	}
	if !strings.EqualFold(record.CredentialHash, hash) {
		return core.Rejectf("credential hash does not match on-chain anchor")
	}
	return nil
}

func containsFold(list []string, want string) bool {
	for _, item := range list {
		if strings.EqualFold(item, want) {
			return true
		}
	}
	return false
}
