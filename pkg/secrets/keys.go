package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of application keys and derived keys (AES-256).
const KeySize = 32

// info separates keys derived here from any other use of the application key.
const info = "tenant-record-seal-v1"

// GenerateKey returns a new random application key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// ParseKey decodes a standard or URL-safe base64 key and checks its length.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if key, err = base64.URLEncoding.DecodeString(s); err != nil {
			return nil, errors.Join(ErrInvalidKey, err)
		}
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// deriveKey returns the scope key; callers clear it after use.
func deriveKey(appKey []byte, scope string) ([]byte, error) {
	r := hkdf.New(sha256.New, appKey, []byte(scope), []byte(info))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	return key, nil
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
