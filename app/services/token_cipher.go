package services

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	tokenCipherVersion = "v1"
	tokenCipherInfo    = "adbridge ad platform token"
)

var ErrMalformedCiphertext = errors.New("malformed token ciphertext")

// TokenCipher seals platform access tokens before they reach the database
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// TokenCipherImpl implements TokenCipher with XChaCha20-Poly1305
type TokenCipherImpl struct {
	aead cipher.AEAD
}

// NewTokenCipher derives a 256-bit key from secret and returns a cipher
func NewTokenCipher(secret string) (TokenCipher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token encryption key is required")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(tokenCipherInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive token key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create token cipher: %w", err)
	}

	return &TokenCipherImpl{aead: aead}, nil
}

// Encrypt returns "v1:" followed by base64url(nonce || sealed)
func (c *TokenCipherImpl) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(tokenCipherVersion))
	return tokenCipherVersion + ":" + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt
func (c *TokenCipherImpl) Decrypt(ciphertext string) (string, error) {
	version, encoded, ok := strings.Cut(ciphertext, ":")
	if !ok || version != tokenCipherVersion {
		return "", ErrMalformedCiphertext
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", ErrMalformedCiphertext
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, []byte(tokenCipherVersion))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt token: %w", err)
	}
	return string(plain), nil
}
