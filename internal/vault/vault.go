// Package vault provides at-rest authenticated encryption for credential
// payloads. One AES-256-GCM key is derived per process from a required
// secret via Argon2id with a fixed salt; without the secret every call
// fails closed.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"

	"github.com/openscholar/veritas/core"
)

const (
	// NonceSize is the 96-bit GCM nonce size.
	NonceSize = 12
	// TagSize is the 128-bit GCM authentication tag size.
	TagSize = 16
	// KeySize is the AES-256 key size.
	KeySize = 32

	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
)

// kdfSalt is fixed: the derived key must be stable across restarts so
// previously stored blobs stay decryptable.
var kdfSalt = []byte("veritas-vault-kdf-v1")

// Vault encrypts and decrypts arbitrary JSON payloads with a single
// process-lifetime key.
type Vault struct {
	aead cipher.AEAD
}

// New derives the vault key from secret and prepares the cipher.
// An empty secret returns core.ErrVaultSealed: there is no plaintext
// fallback and no default key.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, core.ErrVaultSealed
	}

	key := argon2.IDKey([]byte(secret), kdfSalt, argonTime, argonMemory, argonThreads, KeySize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt serializes payload to JSON, encrypts it under a fresh random
// nonce, and returns the storage blob: base64(nonce ‖ tag ‖ ciphertext).
func (v *Vault) Encrypt(payload interface{}) (string, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	// Seal returns ciphertext ‖ tag; the stored layout is nonce ‖ tag ‖
	// ciphertext at fixed offsets.
	sealed := v.aead.Seal(nil, nonce, plaintext, nil)
	ciphertext := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	blob := make([]byte, 0, NonceSize+TagSize+len(ciphertext))
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt reverses Encrypt, verifying the authentication tag before
// returning plaintext. A truncated blob, a flipped bit anywhere in the
// tag or ciphertext, or a wrong key all return core.ErrVaultCorrupted;
// partial or corrupted plaintext is never returned.
func (v *Vault) Decrypt(blob string, out interface{}) error {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrVaultCorrupted, err)
	}
	if len(raw) < NonceSize+TagSize {
		return fmt.Errorf("%w: blob too short", core.ErrVaultCorrupted)
	}

	nonce := raw[:NonceSize]
	tag := raw[NonceSize : NonceSize+TagSize]
	ciphertext := raw[NonceSize+TagSize:]

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrVaultCorrupted, err)
	}

	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}
