package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4

	sealedPrefix = "v1:"
)

var ErrSealed = errors.New("value is sealed and no passphrase is configured")

// Sealer protects redeem codes at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// GenerateSalt returns 16 cryptographically random bytes, base64 encoded
// for storage in the settings table.
func GenerateSalt() (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// DeriveKey derives a 32-byte AES-256 key from a passphrase and salt using Argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonPar, keySize)
}

// AESSealer seals values with AES-256-GCM under a key derived once at
// construction. Sealed values are "v1:" + base64(nonce + ciphertext).
type AESSealer struct {
	gcm cipher.AEAD
}

// NewAESSealer derives the key from passphrase and the base64 salt.
func NewAESSealer(passphrase, salt string) (*AESSealer, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	if len(rawSalt) != saltSize {
		return nil, fmt.Errorf("salt length = %d, want %d", len(rawSalt), saltSize)
	}

	block, err := aes.NewCipher(DeriveKey(passphrase, rawSalt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &AESSealer{gcm: gcm}, nil
}

func (s *AESSealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	out, err := s.SealBytes([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// SealBytes encrypts data as nonce + ciphertext.
func (s *AESSealer) SealBytes(data []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.gcm.Seal(nonce, nonce, data, nil), nil
}

// OpenBytes reverses SealBytes.
func (s *AESSealer) OpenBytes(data []byte) ([]byte, error) {
	if len(data) < nonceSize {
		return nil, errors.New("sealed value too small")
	}
	out, err := s.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return out, nil
}

// Open reverses Seal. Values stored before sealing was enabled pass through.
func (s *AESSealer) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return sealed, nil
	}

	data, err := base64.StdEncoding.DecodeString(sealed[len(sealedPrefix):])
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	plaintext, err := s.OpenBytes(data)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Plain stores values unchanged. It is used when no passphrase is set.
type Plain struct{}

func (Plain) Seal(plaintext string) (string, error) { return plaintext, nil }

func (Plain) Open(sealed string) (string, error) {
	if strings.HasPrefix(sealed, sealedPrefix) {
		return "", ErrSealed
	}
	return sealed, nil
}
