package phi

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Algorithm is the only cipher this codec produces or accepts.
const Algorithm = "aes-256-gcm"

var (
	// ErrKeyMissing is returned when decryption is required but no
	// encryption key is configured. This is a configuration error the
	// operator must fix; it is never retried.
	ErrKeyMissing = errors.New("phi: encrypted record found but INTAKE_ENCRYPTION_KEY is not set")

	// ErrIntegrity is returned when the GCM authentication tag does not
	// verify. The ciphertext was tampered with, corrupted, or encrypted
	// under a different key.
	ErrIntegrity = errors.New("phi: authentication tag mismatch")
)

// Wrapper is the at-rest form of an encrypted payload. All binary fields
// are base64 encoded. The auth tag is stored separately from the
// ciphertext, matching the storage layout of existing intake records.
type Wrapper struct {
	Algorithm string `json:"algorithm" db:"algorithm"`
	IV        string `json:"iv" db:"iv"`
	AuthTag   string `json:"authTag" db:"auth_tag"`
	Data      string `json:"data" db:"data"`
	KeyID     string `json:"keyId,omitempty" db:"key_id"`
}

// DeriveKey hashes the shared secret into a fixed-length AES-256 key.
// Returns nil when the secret is empty, which callers must treat as
// "encryption not configured".
func DeriveKey(secret string) []byte {
	if secret == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// Codec encrypts and decrypts whole-record JSON payloads with AES-256-GCM.
type Codec struct {
	aead  cipher.AEAD
	keyID string
}

// NewCodec creates a Codec from a 32-byte key. The keyID is recorded on
// every wrapper so future key rotation can tell records apart.
func NewCodec(key []byte, keyID string) (*Codec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("phi codec: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("phi codec: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("phi codec: create GCM: %w", err)
	}

	return &Codec{aead: aead, keyID: keyID}, nil
}

// KeyID returns the identifier stamped on wrappers produced by this codec.
func (c *Codec) KeyID() string {
	return c.keyID
}

// Encrypt marshals payload to JSON and seals it under a fresh random IV.
// Two calls with the same payload never produce the same wrapper.
func (c *Codec) Encrypt(payload interface{}) (*Wrapper, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("phi encrypt: marshal payload: %w", err)
	}
	return c.EncryptBytes(plaintext)
}

// EncryptBytes seals raw plaintext. The GCM tag is split off the end of
// the sealed output into its own wrapper field.
func (c *Codec) EncryptBytes(plaintext []byte) (*Wrapper, error) {
	iv := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("phi encrypt: generate iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - c.aead.Overhead()

	return &Wrapper{
		Algorithm: Algorithm,
		IV:        base64.StdEncoding.EncodeToString(iv),
		AuthTag:   base64.StdEncoding.EncodeToString(sealed[tagStart:]),
		Data:      base64.StdEncoding.EncodeToString(sealed[:tagStart]),
		KeyID:     c.keyID,
	}, nil
}

// Decrypt opens the wrapper, verifies the tag, and unmarshals the
// plaintext JSON into out.
func (c *Codec) Decrypt(w *Wrapper, out interface{}) error {
	plaintext, err := c.DecryptBytes(w)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("phi decrypt: unmarshal payload: %w", err)
	}
	return nil
}

// DecryptBytes opens the wrapper and returns the raw plaintext. Tag
// verification failure surfaces as ErrIntegrity.
func (c *Codec) DecryptBytes(w *Wrapper) ([]byte, error) {
	if c == nil {
		return nil, ErrKeyMissing
	}
	if w.Algorithm != "" && w.Algorithm != Algorithm {
		return nil, fmt.Errorf("phi decrypt: unsupported algorithm %q", w.Algorithm)
	}

	iv, err := base64.StdEncoding.DecodeString(w.IV)
	if err != nil {
		return nil, fmt.Errorf("phi decrypt: decode iv: %w", err)
	}
	if len(iv) != c.aead.NonceSize() {
		return nil, fmt.Errorf("phi decrypt: iv must be %d bytes, got %d", c.aead.NonceSize(), len(iv))
	}
	tag, err := base64.StdEncoding.DecodeString(w.AuthTag)
	if err != nil {
		return nil, fmt.Errorf("phi decrypt: decode auth tag: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(w.Data)
	if err != nil {
		return nil, fmt.Errorf("phi decrypt: decode data: %w", err)
	}

	sealed := make([]byte, 0, len(data)+len(tag))
	sealed = append(sealed, data...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}
