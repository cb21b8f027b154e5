package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

// Sealer encrypts and authenticates records under per-scope keys derived
// from one application key. It is safe for concurrent use.
type Sealer struct {
	appKey []byte
}

// NewSealer returns a Sealer for appKey, which must be KeySize bytes.
func NewSealer(appKey []byte) (*Sealer, error) {
	if len(appKey) != KeySize {
		return nil, ErrInvalidKey
	}
	return &Sealer{appKey: append([]byte(nil), appKey...)}, nil
}

// Seal returns nonce || ciphertext || tag for plaintext under scope.
func (s *Sealer) Seal(scope string, plaintext []byte) ([]byte, error) {
	aead, err := s.aead(scope)
	if err != nil {
		return nil, errors.Join(ErrSealFailed, err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Join(ErrSealFailed, err)
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(scope)), nil
}

// Open reverses Seal. It fails for a different scope or a tampered input.
func (s *Sealer) Open(scope string, sealed []byte) ([]byte, error) {
	aead, err := s.aead(scope)
	if err != nil {
		return nil, errors.Join(ErrOpenFailed, err)
	}
	n := aead.NonceSize()
	if len(sealed) < n+aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	plaintext, err := aead.Open(nil, sealed[:n], sealed[n:], []byte(scope))
	if err != nil {
		return nil, errors.Join(ErrOpenFailed, err)
	}
	return plaintext, nil
}

func (s *Sealer) aead(scope string) (cipher.AEAD, error) {
	key, err := deriveKey(s.appKey, scope)
	if err != nil {
		return nil, err
	}
	defer clearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
