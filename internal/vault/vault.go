package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// MaskMarker prefixes every masked credential returned by Mask. API clients
// send it back unchanged to mean "leave this value as is".
const MaskMarker = "****"

const maskSuffixLen = 4

// ErrDecryption is returned when a token cannot be decrypted: tampered
// ciphertext, wrong key, or a malformed token.
var ErrDecryption = errors.New("vault: decryption failed")

// Vault encrypts and decrypts credentials with AES-256-GCM. Tokens are
// self-describing hex strings (nonce || ciphertext || tag), so no metadata
// store is needed alongside the stored value.
type Vault struct {
	gcm cipher.AEAD
}

// New creates a Vault from a 32-byte hex encoded key.
func New(hexKey string) (*Vault, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Vault{gcm: gcm}, nil
}

// Encrypt seals a plaintext credential into a hex token.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends ciphertext and tag to the nonce: nonce || ciphertext || tag
	sealed := v.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt. Any tamper, key mismatch, or
// malformed input yields ErrDecryption.
func (v *Vault) Decrypt(token string) (string, error) {
	buffer, err := hex.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: not a hex token", ErrDecryption)
	}

	nonceSize := v.gcm.NonceSize()
	if len(buffer) < nonceSize+v.gcm.Overhead() {
		return "", fmt.Errorf("%w: token too short", ErrDecryption)
	}

	nonce, sealed := buffer[:nonceSize], buffer[nonceSize:]
	plain, err := v.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDecryption, err)
	}

	return string(plain), nil
}

// Mask returns a display-safe form of a stored token: the mask marker plus
// the last four characters of the decrypted plaintext. It never fails: when
// the token cannot be decrypted the raw token itself is masked, so a corrupt
// value still renders.
func (v *Vault) Mask(token string) string {
	plain, err := v.Decrypt(token)
	if err != nil {
		plain = token
	}
	return maskTail(plain)
}

// IsEncrypted reports whether a value structurally looks like a vault token.
// Used to avoid double-encrypting values that were already sealed.
func (v *Vault) IsEncrypted(value string) bool {
	buffer, err := hex.DecodeString(value)
	if err != nil {
		return false
	}
	return len(buffer) >= v.gcm.NonceSize()+v.gcm.Overhead()
}

// IsMasked reports whether a submitted value is a masked display string,
// meaning the caller intends to leave the stored credential unchanged.
func IsMasked(value string) bool {
	return len(value) >= len(MaskMarker) && value[:len(MaskMarker)] == MaskMarker
}

func maskTail(s string) string {
	if len(s) <= maskSuffixLen {
		return MaskMarker + s
	}
	return MaskMarker + s[len(s)-maskSuffixLen:]
}
