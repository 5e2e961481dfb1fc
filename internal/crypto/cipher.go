// Package crypto provides authenticated encryption of serialized messages.
// Routing columns are never encrypted; only the message payload envelope
// passes through here.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/models"
)

// Supported AEAD algorithms.
const (
	AlgorithmAESGCM   = "aes-256-gcm"
	AlgorithmChaCha20 = "chacha20-poly1305"
)

const (
	keySize   = 32
	gcmIVSize = 16
)

var (
	ErrInvalidKeyFormat = errors.New("crypto: key must be a 64-character hex string")
	ErrEncryption       = errors.New("crypto: encryption failed")
	ErrDecryption       = errors.New("crypto: decryption failed")
)

// Cipher encrypts and decrypts message envelopes with a shared 256-bit key.
type Cipher struct {
	key       []byte
	algorithm string
}

// NewCipher creates a cipher from a 64-hex-character key. An empty algorithm
// selects AES-256-GCM.
func NewCipher(hexKey, algorithm string) (*Cipher, error) {
	if algorithm == "" {
		algorithm = AlgorithmAESGCM
	}
	if len(hexKey) != keySize*2 {
		return nil, fmt.Errorf("%w: got %d characters", ErrInvalidKeyFormat, len(hexKey))
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	switch algorithm {
	case AlgorithmAESGCM, AlgorithmChaCha20:
	default:
		return nil, fmt.Errorf("crypto: unsupported algorithm %q", algorithm)
	}
	return &Cipher{key: key, algorithm: algorithm}, nil
}

// Algorithm returns the configured AEAD algorithm name.
func (c *Cipher) Algorithm() string {
	return c.algorithm
}

func (c *Cipher) aead(algorithm string) (cipher.AEAD, error) {
	switch algorithm {
	case AlgorithmAESGCM:
		block, err := aes.NewCipher(c.key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCMWithNonceSize(block, gcmIVSize)
	case AlgorithmChaCha20:
		return chacha20poly1305.NewX(c.key)
	default:
		return nil, fmt.Errorf("unrecognized algorithm %q", algorithm)
	}
}

// Encrypt seals plaintext under a fresh random IV. IVs are never reused for
// the same key.
func (c *Cipher) Encrypt(plaintext []byte) (*models.EncryptedBlob, error) {
	aead, err := c.aead(c.algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	sealed := aead.Seal(nil, iv, plaintext, nil)
	tagAt := len(sealed) - aead.Overhead()

	return &models.EncryptedBlob{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[:tagAt]),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(sealed[tagAt:]),
		Algorithm:  c.algorithm,
	}, nil
}

// Decrypt opens a blob. An unverifiable auth tag or an unrecognized
// algorithm fails with ErrDecryption; corrupted plaintext is never returned
// silently.
func (c *Cipher) Decrypt(blob *models.EncryptedBlob) ([]byte, error) {
	aead, err := c.aead(blob.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ciphertext encoding", ErrDecryption)
	}
	iv, err := base64.StdEncoding.DecodeString(blob.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid iv encoding", ErrDecryption)
	}
	tag, err := base64.StdEncoding.DecodeString(blob.AuthTag)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid auth tag encoding", ErrDecryption)
	}
	if len(iv) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrDecryption, aead.NonceSize(), len(iv))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong key or tampered ciphertext", ErrDecryption)
	}
	return plaintext, nil
}
