package keyring

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EncryptEnvelope marshals v to JSON, ANSI X9.23-pads it to the AES block
// size, encrypts it under the keyring's cipher key in CBC mode with a
// fresh random IV, and returns base64(iv ∥ ciphertext). The server stores
// this string opaquely as a row's "extra" field.
func (k *Keyring) EncryptEnvelope(v interface{}) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("keyring: marshal envelope plaintext: %w", err)
	}

	block, err := aes.NewCipher(k.CipherKey)
	if err != nil {
		return "", fmt.Errorf("keyring: build cipher: %w", err)
	}

	padded := padX923(plaintext, block.BlockSize())

	iv := make([]byte, block.BlockSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("keyring: generate iv: %w", err)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, len(iv)+len(ciphertext))
	out = append(out, iv...)
	out = append(out, ciphertext...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptEnvelope reverses EncryptEnvelope, unmarshaling the recovered
// plaintext JSON into v. Any base64, length, padding, or JSON failure is
// returned as an error whose message names the step that failed.
func (k *Keyring) DecryptEnvelope(envelope string, v interface{}) error {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return fmt.Errorf("keyring: decode envelope: %w", err)
	}

	block, err := aes.NewCipher(k.CipherKey)
	if err != nil {
		return fmt.Errorf("keyring: build cipher: %w", err)
	}
	blockSize := block.BlockSize()

	if len(raw) < blockSize || (len(raw)-blockSize)%blockSize != 0 {
		return fmt.Errorf("keyring: envelope has invalid length")
	}
	iv, ciphertext := raw[:blockSize], raw[blockSize:]
	if len(ciphertext) == 0 {
		return fmt.Errorf("keyring: envelope has no ciphertext")
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := unpadX923(plaintext, blockSize)
	if err != nil {
		return fmt.Errorf("keyring: unpad envelope: %w", err)
	}

	if err := json.Unmarshal(unpadded, v); err != nil {
		return fmt.Errorf("keyring: decode envelope plaintext: %w", err)
	}
	return nil
}

// padX923 pads data to a multiple of blockSize using ANSI X9.23: zero
// bytes followed by a final byte giving the pad length. A full extra
// block of padding is added when data is already block-aligned, so the
// pad length is always recoverable unambiguously.
func padX923(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	padded[len(padded)-1] = byte(padLen)
	return padded
}

// unpadX923 reverses padX923, validating that the padding bytes are
// well-formed before returning the original data.
func unpadX923(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("keyring: padded data is not block-aligned")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("keyring: invalid padding length")
	}
	zeros := data[len(data)-padLen : len(data)-1]
	if !bytes.Equal(zeros, make([]byte, len(zeros))) {
		return nil, fmt.Errorf("keyring: invalid padding bytes")
	}
	return data[:len(data)-padLen], nil
}
