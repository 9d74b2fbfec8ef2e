package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// EncryptedSeed is an Argon2id + AES-256-GCM protected blob holding the
// PEM-encoded RSA private key. The KDF parameters travel with the
// ciphertext so they can be tuned without breaking existing files.
type EncryptedSeed struct {
	Version     int    `json:"version"`
	Ciphertext  []byte `json:"ciphertext"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Time        uint32 `json:"time"`
	Memory      uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
}

// encryptPrivateKey encrypts pemBytes under a key derived from passphrase
// via Argon2id.
func encryptPrivateKey(pemBytes []byte, passphrase string) (*EncryptedSeed, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("identity: generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLen)
	defer secureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("identity: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("identity: create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("identity: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, pemBytes, nil)
	return &EncryptedSeed{
		Version:     1,
		Ciphertext:  ciphertext,
		Salt:        salt,
		Nonce:       nonce,
		Time:        argon2Time,
		Memory:      argon2Memory,
		Parallelism: argon2Parallelism,
	}, nil
}

// decryptPrivateKey reverses encryptPrivateKey.
func decryptPrivateKey(seed *EncryptedSeed, passphrase string) ([]byte, error) {
	timeCost := seed.Time
	if timeCost == 0 {
		timeCost = argon2Time
	}
	memCost := seed.Memory
	if memCost == 0 {
		memCost = argon2Memory
	}
	parallelism := seed.Parallelism
	if parallelism == 0 {
		parallelism = argon2Parallelism
	}

	key := argon2.IDKey([]byte(passphrase), seed.Salt, timeCost, memCost, parallelism, argon2KeyLen)
	defer secureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("identity: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("identity: create gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, seed.Nonce, seed.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("identity: decrypt (wrong passphrase?): %w", err)
	}
	return plaintext, nil
}

func secureClear(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
