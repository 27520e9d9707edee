package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openscholar/veritas/adapters/store"
	"github.com/openscholar/veritas/core"
	"github.com/openscholar/veritas/internal/canon"
	"github.com/openscholar/veritas/internal/vault"
)

// fakeAnchor returns a fixed record for one wallet and nil otherwise.
type fakeAnchor struct {
	wallet string
	record *core.AnchorRecord
}

func (f *fakeAnchor) ReadAnchor(ctx context.Context, walletAddress string) *core.AnchorRecord {
	if f.record != nil && walletAddress == f.wallet {
		return f.record
	}
	return nil
}

const (
	testWallet = "0x00000000000000000000000000000000000badc0"
	testDID    = "did:ethr:" + testWallet
	testIssuer = "did:ethr:0x0000000000000000000000000000000000001ab5"
)

type credFixture struct {
	svc   *CredentialService
	store *store.MemoryStore
	vault *vault.Vault
}

func newCredFixture(t *testing.T, anchor *fakeAnchor) *credFixture {
	t.Helper()

	v, err := vault.New("test-secret")
	require.NoError(t, err)

	st := store.NewMemoryStore()
	var svc *CredentialService
	if anchor != nil {
		svc = NewCredentialService(st, v, anchor, nil, zerolog.Nop())
	} else {
		svc = NewCredentialService(st, v, nil, nil, zerolog.Nop())
	}
	return &credFixture{svc: svc, store: st, vault: v}
}

func validCredential() map[string]interface{} {
	return map[string]interface{}{
		"@context":     []interface{}{"https://www.w3.org/2018/credentials/v1"},
		"type":         []interface{}{"VerifiableCredential", "ResearcherCredential"},
		"issuer":       testIssuer,
		"issuanceDate": "2026-01-15T09:00:00Z",
		"credentialSubject": map[string]interface{}{
			"id":   testDID,
			"name": "Dr. Ada Example",
			"lab":  "Computational Genomics",
		},
		"proof": map[string]interface{}{
			"type":         "EcdsaSecp256k1Signature2019",
			"proofPurpose": "assertionMethod",
			"challenge":    "f3c9a1",
			"proofValue":   "0xsigbytes",
		},
	}
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func submit(t *testing.T, f *credFixture, payload interface{}, opts ...func(*SubmitRequest)) (*core.Credential, error) {
	t.Helper()
	req := SubmitRequest{
		UserID:        "user-1",
		WalletAddress: testWallet,
		DID:           testDID,
		Credential:    mustJSON(t, payload),
	}
	for _, opt := range opts {
		opt(&req)
	}
	return f.svc.VerifyAndStoreCredential(context.Background(), req)
}

func TestVerifyAndStoreHappyPath(t *testing.T) {
	f := newCredFixture(t, nil)

	cred, err := submit(t, f, validCredential())
	require.NoError(t, err)

	assert.Equal(t, "ResearcherCredential", cred.Type)
	assert.Equal(t, testIssuer, cred.Issuer)
	assert.Equal(t, core.CredentialVerified, cred.Status)
	assert.NotEmpty(t, cred.Hash)
	assert.Nil(t, cred.RevokedAt)

	// Metadata is the vault-encrypted original document.
	var stored map[string]interface{}
	require.NoError(t, f.vault.Decrypt(cred.Metadata, &stored))
	assert.Equal(t, testIssuer, stored["issuer"])
}

func TestSubjectMustMatchDID(t *testing.T) {
	f := newCredFixture(t, nil)

	payload := validCredential()
	payload["credentialSubject"].(map[string]interface{})["id"] = "did:ethr:0xsomeoneelse"

	_, err := submit(t, f, payload)
	require.Error(t, err)
	assert.True(t, core.IsVerificationError(err))

	// No row may exist after a rejection.
	creds, err := f.store.ListCredentials(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestSubjectMatchIsCaseInsensitive(t *testing.T) {
	f := newCredFixture(t, nil)

	payload := validCredential()
	payload["credentialSubject"].(map[string]interface{})["id"] = "DID:ETHR:0X00000000000000000000000000000000000BADC0"

	_, err := submit(t, f, payload)
	assert.NoError(t, err)
}

func TestMissingSubjectRejected(t *testing.T) {
	f := newCredFixture(t, nil)

	payload := validCredential()
	delete(payload, "credentialSubject")

	_, err := submit(t, f, payload)
	assert.True(t, core.IsVerificationError(err))
}

func TestIssuerAllowList(t *testing.T) {
	f := newCredFixture(t, nil)

	_, err := submit(t, f, validCredential(), func(r *SubmitRequest) {
		r.IssuerAllowList = []string{"did:ethr:0xtrusted"}
	})
	assert.True(t, core.IsVerificationError(err))

	_, err = submit(t, f, validCredential(), func(r *SubmitRequest) {
		r.IssuerAllowList = []string{"did:ethr:0xtrusted", testIssuer}
	})
	assert.NoError(t, err)
}

func TestTypeResolution(t *testing.T) {
	f := newCredFixture(t, nil)

	// Array: first non-generic entry wins.
	cred, err := submit(t, f, validCredential())
	require.NoError(t, err)
	assert.Equal(t, "ResearcherCredential", cred.Type)

	// Only the generic wrapper: falls back to the first entry.
	payload := validCredential()
	payload["type"] = []interface{}{"VerifiableCredential"}
	cred, err = submit(t, f, payload)
	require.NoError(t, err)
	assert.Equal(t, "VerifiableCredential", cred.Type)

	// Bare string form.
	payload = validCredential()
	payload["type"] = "LabMembershipCredential"
	cred, err = submit(t, f, payload)
	require.NoError(t, err)
	assert.Equal(t, "LabMembershipCredential", cred.Type)

	// Expected types are matched case-insensitively.
	_, err = submit(t, f, validCredential(), func(r *SubmitRequest) {
		r.ExpectedTypes = []string{"researchercredential"}
	})
	assert.NoError(t, err)

	_, err = submit(t, f, validCredential(), func(r *SubmitRequest) {
		r.ExpectedTypes = []string{"SeminarHostCredential"}
	})
	assert.True(t, core.IsVerificationError(err))
}

func TestExpirationDate(t *testing.T) {
	f := newCredFixture(t, nil)

	payload := validCredential()
	payload["expirationDate"] = time.Now().Add(-time.Hour).Format(time.RFC3339)
	_, err := submit(t, f, payload)
	assert.True(t, core.IsVerificationError(err))

	payload["expirationDate"] = time.Now().Add(time.Hour).Format(time.RFC3339)
	_, err = submit(t, f, payload)
	assert.NoError(t, err)

	payload["expirationDate"] = "not-a-date"
	_, err = submit(t, f, payload)
	assert.True(t, core.IsVerificationError(err))
}

func TestProofValidation(t *testing.T) {
	f := newCredFixture(t, nil)

	// Proof without a challenge string is rejected.
	payload := validCredential()
	delete(payload["proof"].(map[string]interface{}), "challenge")
	_, err := submit(t, f, payload)
	assert.True(t, core.IsVerificationError(err))

	// Non-assertion proof purpose is rejected.
	payload = validCredential()
	payload["proof"].(map[string]interface{})["proofPurpose"] = "keyAgreement"
	_, err = submit(t, f, payload)
	assert.True(t, core.IsVerificationError(err))

	// A credential with no proof block at all is acceptable.
	payload = validCredential()
	delete(payload, "proof")
	_, err = submit(t, f, payload)
	assert.NoError(t, err)
}

func TestHashExcludesProofValue(t *testing.T) {
	f := newCredFixture(t, nil)

	first, err := submit(t, f, validCredential())
	require.NoError(t, err)

	// Changing only the signature bytes must not change the hash.
	payload := validCredential()
	payload["proof"].(map[string]interface{})["proofValue"] = "0xdifferentsig"
	second, err := submit(t, f, payload)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.Hash)

	// Changing claim content must change it.
	payload = validCredential()
	payload["credentialSubject"].(map[string]interface{})["lab"] = "Another Lab"
	third, err := submit(t, f, payload)
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash, third.Hash)
}

func expectedHash(t *testing.T, payload map[string]interface{}) string {
	t.Helper()
	hashable := map[string]interface{}{}
	raw := mustJSON(t, payload)
	require.NoError(t, json.Unmarshal(raw, &hashable))
	if proof, ok := hashable["proof"].(map[string]interface{}); ok {
		delete(proof, "proofValue")
	}
	hash, err := canon.Hash(hashable)
	require.NoError(t, err)
	return hash
}

func TestAnchorRevokedHardReject(t *testing.T) {
	payload := validCredential()
	f := newCredFixture(t, &fakeAnchor{
		wallet: testWallet,
		record: &core.AnchorRecord{
			CredentialHash: "placeholder",
			Revoked:        true,
			IssuedAt:       100,
		},
	})

	// Even a matching hash must not save a revoked credential.
	f2 := newCredFixture(t, &fakeAnchor{
		wallet: testWallet,
		record: &core.AnchorRecord{
			CredentialHash: expectedHash(t, payload),
			Revoked:        true,
			IssuedAt:       100,
		},
	})

	for _, fixture := range []*credFixture{f, f2} {
		_, err := submit(t, fixture, payload)
		require.Error(t, err)
		assert.True(t, core.IsVerificationError(err))
		assert.Contains(t, err.Error(), "revoked")
	}
}

func TestAnchorHashMismatchReject(t *testing.T) {
	f := newCredFixture(t, &fakeAnchor{
		wallet: testWallet,
		record: &core.AnchorRecord{
			CredentialHash: "0x" + fmt.Sprintf("%064d", 0),
			Revoked:        false,
			IssuedAt:       100,
		},
	})

	_, err := submit(t, f, validCredential())
	require.Error(t, err)
	assert.True(t, core.IsVerificationError(err))
	assert.Contains(t, err.Error(), "anchor")
}

func TestAnchorHashMatchAccepts(t *testing.T) {
	payload := validCredential()
	f := newCredFixture(t, &fakeAnchor{
		wallet: testWallet,
		record: &core.AnchorRecord{
			CredentialHash: expectedHash(t, payload),
			Revoked:        false,
			IssuedAt:       100,
		},
	})

	cred, err := submit(t, f, payload)
	require.NoError(t, err)
	assert.Equal(t, core.CredentialVerified, cred.Status)
}

func TestNoUsableAnchorProceedsUnanchored(t *testing.T) {
	// The reader returns nil for this wallet: the credential is accepted
	// without a cross-check.
	f := newCredFixture(t, &fakeAnchor{wallet: "0xother", record: &core.AnchorRecord{Revoked: true, IssuedAt: 1}})

	_, err := submit(t, f, validCredential())
	assert.NoError(t, err)
}

func TestUpsertKeepsOneRowPerType(t *testing.T) {
	f := newCredFixture(t, nil)
	ctx := context.Background()

	first, err := submit(t, f, validCredential())
	require.NoError(t, err)

	payload := validCredential()
	payload["credentialSubject"].(map[string]interface{})["lab"] = "New Lab"
	second, err := submit(t, f, payload)
	require.NoError(t, err)

	creds, err := f.store.ListCredentials(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, creds, 1)

	// The second submission overwrote hash and metadata in place.
	assert.Equal(t, first.ID, creds[0].ID)
	assert.Equal(t, second.Hash, creds[0].Hash)
	assert.NotEqual(t, first.Hash, creds[0].Hash)
}

func TestListCredentialsDecryptsMetadata(t *testing.T) {
	f := newCredFixture(t, nil)

	_, err := submit(t, f, validCredential())
	require.NoError(t, err)

	views, err := f.svc.ListCredentials(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, views, 1)

	require.NotNil(t, views[0].Metadata)
	subject := views[0].Metadata["credentialSubject"].(map[string]interface{})
	assert.Equal(t, "Dr. Ada Example", subject["name"])
}

func TestMalformedCredentialRejected(t *testing.T) {
	f := newCredFixture(t, nil)
	ctx := context.Background()

	for _, raw := range []string{``, `[]`, `"just a string"`, `{"type":{}}`} {
		_, err := f.svc.VerifyAndStoreCredential(ctx, SubmitRequest{
			UserID:        "user-1",
			WalletAddress: testWallet,
			DID:           testDID,
			Credential:    json.RawMessage(raw),
		})
		assert.True(t, core.IsVerificationError(err), "payload %q", raw)
	}
}
