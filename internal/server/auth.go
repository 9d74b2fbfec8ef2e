package server

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/phasma-db/phasmadb/pkg/helpers"
)

// challengeSize is the number of random bytes the server asks the client
// to decrypt and echo back during the handshake.
const challengeSize = 64

var usernamePattern = regexp.MustCompile(`^[0-9A-Za-z_]+$`)

func validUsername(u string) bool {
	return u != "" && usernamePattern.MatchString(u)
}

// KeyStore loads and caches users' RSA public keys from a directory of
// "<username>.pem" PKCS#1 PEM files, the server side of new_user's
// public_keys/<username>.pem convention.
type KeyStore struct {
	dir string

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// NewKeyStore opens a directory of registered users' public keys.
func NewKeyStore(dir string) (*KeyStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("server: create public key directory: %w", err)
	}
	return &KeyStore{dir: dir, keys: make(map[string]*rsa.PublicKey)}, nil
}

// Lookup returns the registered public key for username, or false if no
// such user is registered.
func (k *KeyStore) Lookup(username string) (*rsa.PublicKey, bool) {
	k.mu.RLock()
	if pub, ok := k.keys[username]; ok {
		k.mu.RUnlock()
		return pub, true
	}
	k.mu.RUnlock()

	pub, err := k.loadFromDisk(username)
	if err != nil {
		return nil, false
	}

	k.mu.Lock()
	k.keys[username] = pub
	k.mu.Unlock()
	return pub, true
}

func (k *KeyStore) loadFromDisk(username string) (*rsa.PublicKey, error) {
	path := filepath.Join(k.dir, username+".pem")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("server: %s: not a PEM file", path)
	}
	pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("server: %s: parse public key: %w", path, err)
	}
	return pub, nil
}

// issueChallenge draws a fresh random token and encrypts it to pub with
// PKCS#1 v1.5 padding, returning both the plaintext (kept server-side to
// verify the response) and the hex ciphertext sent over the wire.
func issueChallenge(pub *rsa.PublicKey) (plaintext []byte, ciphertextHex string, err error) {
	plaintext, err = helpers.GenerateSecureRandom(challengeSize)
	if err != nil {
		return nil, "", fmt.Errorf("server: generate challenge: %w", err)
	}
	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, pub, plaintext)
	if err != nil {
		return nil, "", fmt.Errorf("server: encrypt challenge: %w", err)
	}
	return plaintext, hex.EncodeToString(ciphertext), nil
}

func verifyResponse(expected []byte, responseHex string) bool {
	got, err := hex.DecodeString(responseHex)
	if err != nil {
		return false
	}
	return helpers.ConstantTimeCompare(expected, got)
}
