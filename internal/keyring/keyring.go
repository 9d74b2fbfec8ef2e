// Package keyring holds the client-side secret material that makes
// PhasmaDB's index tokens and payload envelopes meaningful: a symmetric
// cipher key for the opaque "extra" blob, an order-preserving key for
// integer index values, and a salt for deterministic name hashing. None
// of this material, nor its derivation, is ever sent to the server.
package keyring

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/phasma-db/phasmadb/internal/ope"
)

const (
	cipherKeySize = 32 // AES-256
	saltSize      = 32
	opeSecretSize = 32

	opePlainMin  = 0
	opePlainMax  = 1<<31 - 1
	opeCipherMin = 0
	opeCipherMax = 1<<63 - 1
)

// Keyring carries a user's complete set of client-held secrets.
type Keyring struct {
	CipherKey []byte
	NameSalt  []byte
	OPEKey    *ope.Key
}

// Generate creates a fresh Keyring using a cryptographically secure random
// source for every piece of key material.
func Generate() (*Keyring, error) {
	cipherKey := make([]byte, cipherKeySize)
	if _, err := rand.Read(cipherKey); err != nil {
		return nil, fmt.Errorf("keyring: generate cipher key: %w", err)
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keyring: generate salt: %w", err)
	}
	opeSecret := make([]byte, opeSecretSize)
	if _, err := rand.Read(opeSecret); err != nil {
		return nil, fmt.Errorf("keyring: generate ope secret: %w", err)
	}
	opeKey, err := ope.NewKey(opeSecret, opePlainMin, opePlainMax, opeCipherMin, opeCipherMax)
	if err != nil {
		return nil, fmt.Errorf("keyring: build ope key: %w", err)
	}
	return &Keyring{CipherKey: cipherKey, NameSalt: salt, OPEKey: opeKey}, nil
}

// fileForm is the self-describing on-disk JSON serialization: it carries
// both the OPE key material and the plaintext/ciphertext ranges it was
// configured with, so a loaded keyring reproduces the same encoder exactly.
type fileForm struct {
	CipherKey string       `json:"cipher_key"`
	Salt      string       `json:"salt"`
	OPEKey    opeFileForm  `json:"ope_key"`
}

type opeFileForm struct {
	K         string `json:"k"`
	PlainMin  int64  `json:"plain_min"`
	PlainMax  int64  `json:"plain_max"`
	CipherMin int64  `json:"cipher_min"`
	CipherMax int64  `json:"cipher_max"`
}

// Marshal serializes the keyring to its self-describing JSON form.
func (k *Keyring) Marshal() ([]byte, error) {
	plainMin, plainMax := k.OPEKey.PlainRange()
	cipherMin, cipherMax := k.OPEKey.CipherRange()
	f := fileForm{
		CipherKey: base64.StdEncoding.EncodeToString(k.CipherKey),
		Salt:      base64.StdEncoding.EncodeToString(k.NameSalt),
		OPEKey: opeFileForm{
			K:         base64.StdEncoding.EncodeToString(k.OPEKey.Secret()),
			PlainMin:  plainMin,
			PlainMax:  plainMax,
			CipherMin: cipherMin,
			CipherMax: cipherMax,
		},
	}
	return json.MarshalIndent(f, "", "  ")
}

// Unmarshal reconstructs a Keyring from its serialized form.
func Unmarshal(data []byte) (*Keyring, error) {
	var f fileForm
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("keyring: decode: %w", err)
	}
	cipherKey, err := base64.StdEncoding.DecodeString(f.CipherKey)
	if err != nil {
		return nil, fmt.Errorf("keyring: decode cipher key: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(f.Salt)
	if err != nil {
		return nil, fmt.Errorf("keyring: decode salt: %w", err)
	}
	secret, err := base64.StdEncoding.DecodeString(f.OPEKey.K)
	if err != nil {
		return nil, fmt.Errorf("keyring: decode ope secret: %w", err)
	}
	opeKey, err := ope.NewKey(secret, f.OPEKey.PlainMin, f.OPEKey.PlainMax, f.OPEKey.CipherMin, f.OPEKey.CipherMax)
	if err != nil {
		return nil, fmt.Errorf("keyring: rebuild ope key: %w", err)
	}
	return &Keyring{CipherKey: cipherKey, NameSalt: salt, OPEKey: opeKey}, nil
}

// Save writes the keyring to path as JSON, readable only by the owner.
func (k *Keyring) Save(path string) error {
	data, err := k.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Load reads a keyring previously written by Save.
func Load(path string) (*Keyring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keyring: read %s: %w", path, err)
	}
	return Unmarshal(data)
}
