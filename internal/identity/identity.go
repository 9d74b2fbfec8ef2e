// Package identity implements the client-side user-provisioning flow:
// generating a user's RSA key pair, registering the public half under
// the server's public_keys directory, and serializing the private half
// to a file the user alone holds.
package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// keySize is the RSA modulus size, in bits, of generated key pairs. The
// session handshake (internal/server) encrypts its challenge to the
// public half with PKCS#1 v1.5; it does not itself fix a key size.
const keySize = 2048

var usernamePattern = regexp.MustCompile(`^[0-9A-Za-z_]+$`)

// ValidUsername reports whether username is an acceptable owner
// identity.
func ValidUsername(username string) bool {
	return username != "" && usernamePattern.MatchString(username)
}

// PrivateKeyFile is the on-disk JSON shape of a user's private key
// file: a base64-encoded PKCS#8 PEM block, optionally
// passphrase-protected.
type PrivateKeyFile struct {
	Username      string         `json:"username"`
	PrivateKey    string         `json:"private_key,omitempty"`
	EncryptedSeed *EncryptedSeed `json:"encrypted_private_key,omitempty"`
}

// NewUser generates a fresh RSA key pair for username, writes the public
// half to publicKeyDir/<username>.pem (PKCS#1 PEM, the format
// internal/server.KeyStore reads), and writes the private half to
// privateKeyPath as a PrivateKeyFile. If passphrase is non-empty the
// private key is encrypted at rest with Argon2id + AES-256-GCM instead of
// stored as cleartext base64.
func NewUser(username, publicKeyDir, privateKeyPath, passphrase string) error {
	if !ValidUsername(username) {
		return fmt.Errorf("identity: invalid username %q (must match [0-9A-Za-z_]+)", username)
	}

	priv, err := rsa.GenerateKey(rand.Reader, keySize)
	if err != nil {
		return fmt.Errorf("identity: generate key pair: %w", err)
	}

	if err := os.MkdirAll(publicKeyDir, 0700); err != nil {
		return fmt.Errorf("identity: create public key directory: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&priv.PublicKey),
	})
	pubPath := filepath.Join(publicKeyDir, username+".pem")
	if err := os.WriteFile(pubPath, pubPEM, 0644); err != nil {
		return fmt.Errorf("identity: write public key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("identity: marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	out := PrivateKeyFile{Username: username}
	if passphrase == "" {
		out.PrivateKey = base64.StdEncoding.EncodeToString(privPEM)
	} else {
		seed, err := encryptPrivateKey(privPEM, passphrase)
		if err != nil {
			return fmt.Errorf("identity: encrypt private key: %w", err)
		}
		out.EncryptedSeed = seed
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal private key file: %w", err)
	}
	if err := os.WriteFile(privateKeyPath, data, 0600); err != nil {
		return fmt.Errorf("identity: write private key file: %w", err)
	}
	return nil
}

// LoadPrivateKey reads a private key file written by NewUser, decrypting
// it with passphrase if it was stored encrypted.
func LoadPrivateKey(path, passphrase string) (username string, priv *rsa.PrivateKey, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("identity: read %s: %w", path, err)
	}
	var f PrivateKeyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return "", nil, fmt.Errorf("identity: decode %s: %w", path, err)
	}

	var pemBytes []byte
	switch {
	case f.EncryptedSeed != nil:
		pemBytes, err = decryptPrivateKey(f.EncryptedSeed, passphrase)
		if err != nil {
			return "", nil, fmt.Errorf("identity: decrypt private key: %w", err)
		}
	case f.PrivateKey != "":
		pemBytes, err = base64.StdEncoding.DecodeString(f.PrivateKey)
		if err != nil {
			return "", nil, fmt.Errorf("identity: decode private key: %w", err)
		}
	default:
		return "", nil, fmt.Errorf("identity: %s has no private key payload", path)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return "", nil, fmt.Errorf("identity: %s: not a PEM file", path)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return "", nil, fmt.Errorf("identity: parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return "", nil, fmt.Errorf("identity: %s does not hold an RSA private key", path)
	}
	return f.Username, rsaKey, nil
}

// argon2 parameters for passphrase-protected private key files.
const (
	argon2Time        = 3
	argon2Memory      = 64 * 1024
	argon2Parallelism = 4
	argon2KeyLen      = 32
	argon2SaltLen     = 32
)
