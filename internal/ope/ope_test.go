package ope

import (
	"crypto/rand"
	"testing"
)

func testKey(t *testing.T) *Key {
	t.Helper()
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("rand: %v", err)
	}
	k, err := NewKey(secret, 0, 1<<31-1, 0, 1<<63-1)
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	return k
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	k := testKey(t)
	for _, x := range []int64{0, 1, 2, 42, 1000, 1 << 20, 1<<31 - 1} {
		c, err := k.Encrypt(x)
		if err != nil {
			t.Fatalf("Encrypt(%d): %v", x, err)
		}
		got, err := k.Decrypt(c)
		if err != nil {
			t.Fatalf("Decrypt(%d): %v", c, err)
		}
		if got != x {
			t.Errorf("round trip: Encrypt(%d)=%d, Decrypt=%d, want %d", x, c, got, x)
		}
	}
}

func TestOrderPreserved(t *testing.T) {
	k := testKey(t)
	values := []int64{0, 1, 2, 5, 6, 100, 101, 8570, 1914, 2247, 1377, 1 << 30}
	for _, a := range values {
		for _, b := range values {
			ca, err := k.Encrypt(a)
			if err != nil {
				t.Fatalf("Encrypt(%d): %v", a, err)
			}
			cb, err := k.Encrypt(b)
			if err != nil {
				t.Fatalf("Encrypt(%d): %v", b, err)
			}
			switch {
			case a < b && ca >= cb:
				t.Errorf("order violated: %d < %d but Encrypt(%d)=%d >= Encrypt(%d)=%d", a, b, a, ca, b, cb)
			case a == b && ca != cb:
				t.Errorf("determinism violated: Encrypt(%d) = %d and %d", a, ca, cb)
			case a > b && ca <= cb:
				t.Errorf("order violated: %d > %d but Encrypt(%d)=%d <= Encrypt(%d)=%d", a, b, a, ca, b, cb)
			}
		}
	}
}

func TestDifferentKeysDiffer(t *testing.T) {
	k1 := testKey(t)
	k2 := testKey(t)
	c1, _ := k1.Encrypt(12345)
	c2, _ := k2.Encrypt(12345)
	if c1 == c2 {
		t.Fatalf("expected distinct keys to (almost certainly) produce distinct ciphertexts for the same plaintext")
	}
}

func TestOutOfRangeRejected(t *testing.T) {
	k := testKey(t)
	if _, err := k.Encrypt(-1); err == nil {
		t.Fatalf("expected error encrypting out-of-range plaintext")
	}
	if _, err := k.Decrypt(-1); err == nil {
		t.Fatalf("expected error decrypting out-of-range ciphertext")
	}
}
