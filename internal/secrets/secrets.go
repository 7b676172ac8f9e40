package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

var (
	newGCM     = cipher.NewGCM
	nonceInput io.Reader = rand.Reader
)

var errKeyFormat = errors.New("CONVERSATION_SECRETS_KEY must be 32 bytes or base64-encoded 32 bytes")

// ParseKey accepts a raw 32-byte key or its standard base64 encoding.
func ParseKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, errors.New("CONVERSATION_SECRETS_KEY is required")
	}
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(decoded) != 32 {
		return nil, errKeyFormat
	}
	return decoded, nil
}

// Box seals values with AES-256-GCM. Sealed values are base64 of
// nonce || ciphertext so they can live in a text column.
type Box struct {
	aead cipher.AEAD
}

func NewBox(raw string) (*Box, error) {
	key, err := ParseKey(raw)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := newGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

func (b *Box) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(nonceInput, nonce); err != nil {
		return "", err
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (b *Box) Open(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(data) < b.aead.NonceSize() {
		return "", errors.New("invalid sealed value")
	}
	nonce, ciphertext := data[:b.aead.NonceSize()], data[b.aead.NonceSize():]
	plain, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
