package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"decryptrecovery/internal/constants"
	"decryptrecovery/internal/models"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// encryptor seals sender addresses, group ids and bodies at rest. Columns
// that must be searchable get a keyed hash next to the ciphertext instead of
// deterministic encryption.
type encryptor struct {
	gcm       cipher.AEAD
	lookupKey []byte
}

func newEncryptor(cfg models.DatabaseConfig) (*encryptor, error) {
	if !cfg.EncryptionEnabled {
		return &encryptor{}, nil
	}

	key, err := deriveKey(cfg.EncryptionSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	lookupKey := make([]byte, models.LookupKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(constants.EncryptionLookupInfo)), lookupKey); err != nil {
		return nil, fmt.Errorf("failed to derive lookup key: %w", err)
	}

	return &encryptor{gcm: gcm, lookupKey: lookupKey}, nil
}

func (e *encryptor) enabled() bool {
	return e.gcm != nil
}

func (e *encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || !e.enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, models.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	// Prepend nonce to ciphertext for storage
	result := append(nonce, sealed...)
	return base64.StdEncoding.EncodeToString(result), nil
}

func (e *encryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" || !e.enabled() {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	if len(data) < models.NonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:models.NonceSize], data[models.NonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

func (e *encryptor) decryptOptional(ciphertext *string) (*string, error) {
	if ciphertext == nil {
		return nil, nil
	}
	plain, err := e.Decrypt(*ciphertext)
	if err != nil {
		return nil, err
	}
	return &plain, nil
}

// LookupHash returns the value stored in *_hash columns. Without encryption
// the plaintext itself is the lookup value.
func (e *encryptor) LookupHash(value string) string {
	if value == "" || !e.enabled() {
		return value
	}
	mac := hmac.New(sha256.New, e.lookupKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

func deriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("an encryption secret is required when encryption is enabled")
	}

	if len(secret) < constants.MinEncryptionSecret {
		return nil, fmt.Errorf("encryption secret must be at least %d characters long", constants.MinEncryptionSecret)
	}

	salt := []byte(constants.EncryptionSalt)
	return pbkdf2.Key([]byte(secret), salt, models.Iterations, models.KeySize, sha256.New), nil
}
