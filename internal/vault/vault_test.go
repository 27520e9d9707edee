package vault

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openscholar/veritas/core"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New("test-secret")
	require.NoError(t, err)
	return v
}

func TestNewFailsClosedWithoutSecret(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, core.ErrVaultSealed)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := newTestVault(t)

	payloads := []map[string]interface{}{
		{},
		{"empty": []interface{}{}, "obj": map[string]interface{}{}},
		{
			"issuer": "did:ethr:0xabc",
			"credentialSubject": map[string]interface{}{
				"id":     "did:ethr:0xdef",
				"labs":   []interface{}{"genomics", "ml"},
				"tenure": float64(7),
			},
		},
	}

	for _, payload := range payloads {
		blob, err := v.Encrypt(payload)
		require.NoError(t, err)

		var out map[string]interface{}
		require.NoError(t, v.Decrypt(blob, &out))
		assert.Equal(t, payload, out)
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	v := newTestVault(t)
	payload := map[string]interface{}{"a": float64(1)}

	first, err := v.Encrypt(payload)
	require.NoError(t, err)
	second, err := v.Encrypt(payload)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecryptRejectsTamperedTag(t *testing.T) {
	v := newTestVault(t)

	blob, err := v.Encrypt(map[string]interface{}{"a": float64(1)})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)

	// Flip a bit in every tag byte position; all must fail authentication.
	for i := NonceSize; i < NonceSize+TagSize; i++ {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		mutated[i] ^= 0x01

		var out map[string]interface{}
		err := v.Decrypt(base64.StdEncoding.EncodeToString(mutated), &out)
		assert.ErrorIs(t, err, core.ErrVaultCorrupted, "tag byte %d", i)
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	v := newTestVault(t)

	blob, err := v.Encrypt(map[string]interface{}{"field": "value"})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x80

	var out map[string]interface{}
	err = v.Decrypt(base64.StdEncoding.EncodeToString(raw), &out)
	assert.ErrorIs(t, err, core.ErrVaultCorrupted)
}

func TestDecryptRejectsTruncatedBlob(t *testing.T) {
	v := newTestVault(t)

	var out map[string]interface{}
	err := v.Decrypt(base64.StdEncoding.EncodeToString(make([]byte, NonceSize+TagSize-1)), &out)
	assert.ErrorIs(t, err, core.ErrVaultCorrupted)

	err = v.Decrypt("not base64!!!", &out)
	assert.ErrorIs(t, err, core.ErrVaultCorrupted)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	v := newTestVault(t)
	other, err := New("different-secret")
	require.NoError(t, err)

	blob, err := v.Encrypt(map[string]interface{}{"a": float64(1)})
	require.NoError(t, err)

	var out map[string]interface{}
	err = other.Decrypt(blob, &out)
	assert.ErrorIs(t, err, core.ErrVaultCorrupted)
}
