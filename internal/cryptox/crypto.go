// Package cryptox implements the draft-store encryption primitives:
// PBKDF2 key derivation from a passphrase, a verifier hash for unlock
// checks, and AES-GCM encryption of JSON payloads into a portable envelope.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/json"

	"golang.org/x/crypto/pbkdf2"

	"github.com/talentflow/offlinecache/internal/common"
)

const (
	// KeySize is the derived AES key length (AES-256).
	KeySize = 32
	// SaltSize is the random salt length used for derivation.
	SaltSize = 16
	// Iterations is the PBKDF2 round count.
	Iterations = 100_000

	nonceSize = 12
)

// DeriveKey derives a 256-bit AES key from the passphrase and salt using
// PBKDF2-HMAC-SHA256.
func DeriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, Iterations, KeySize, sha256.New)
}

// NewSalt returns a fresh random salt for key derivation.
func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

// MakeVerifier hashes the derived key so a stored verifier can confirm a
// passphrase without persisting the key itself.
func MakeVerifier(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:]
}

// Envelope is the at-rest form of an encrypted draft value. IV and Data are
// base64-encoded when the envelope itself is serialized to JSON.
type Envelope struct {
	Encrypted bool   `json:"encrypted"`
	IV        []byte `json:"iv"`
	Data      []byte `json:"data"`
}

// EncryptJSON serializes v to JSON and encrypts it with AES-GCM under key.
// A new random 12-byte nonce is generated per call and stored as the IV.
func EncryptJSON(v any, key []byte) (*Envelope, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(nonceSize)
	ciphertext := aesgcm.Seal(nil, nonce, plaintext, nil)

	return &Envelope{Encrypted: true, IV: nonce, Data: ciphertext}, nil
}

// DecryptJSON reverses EncryptJSON, unmarshalling the plaintext into v.
func DecryptJSON(env *Envelope, key []byte, v any) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, env.IV, env.Data, nil)
	if err != nil {
		return err
	}

	return json.Unmarshal(plaintext, v)
}

// ParseEnvelope reports whether raw is a serialized encrypted envelope and
// returns it when so. Plain JSON values return (nil, false).
func ParseEnvelope(raw []byte) (*Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}
	if !env.Encrypted || len(env.IV) == 0 || len(env.Data) == 0 {
		return nil, false
	}
	return &env, true
}
