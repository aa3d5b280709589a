package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// nonceSize is the AES-GCM nonce length prepended to every ciphertext.
const nonceSize = 12

// tagSize is the AES-GCM authentication tag length appended by Seal.
const tagSize = 16

// minCiphertextSize is the smallest possible valid ciphertext: a nonce plus
// an authentication tag over an empty payload.
const minCiphertextSize = nonceSize + tagSize

// Encryptor provides AES-256-GCM authenticated encryption for recording
// payloads. Each ciphertext carries its random nonce as a prefix. The key is
// identified by a logical key ID persisted with the recording metadata, so a
// future key rotation can decrypt old files by looking up the right key.
type Encryptor struct {
	aead  cipher.AEAD
	keyID string
}

// NewEncryptor creates an encryptor from 32 bytes of key material.
func NewEncryptor(key []byte, keyID string) (*Encryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	if keyID == "" {
		return nil, fmt.Errorf("encryption key id must not be empty")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	return &Encryptor{aead: aead, keyID: keyID}, nil
}

// KeyID returns the logical identifier of the active key.
func (e *Encryptor) KeyID() string {
	return e.keyID
}

// Encrypt seals the plaintext with a fresh random nonce. The returned slice
// is nonce || ciphertext || tag.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt, verifying its
// authentication tag. Truncated or tampered data is rejected.
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	if len(data) < minCiphertextSize {
		return nil, fmt.Errorf("ciphertext too short: %d bytes, need at least %d", len(data), minCiphertextSize)
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting payload: %w", err)
	}
	return plaintext, nil
}

// EncryptedSize returns the on-disk size of a plaintext of the given length
// after encryption. Used for quota projection before the actual seal.
func EncryptedSize(plaintextLen int) int64 {
	return int64(plaintextLen + nonceSize + tagSize)
}
