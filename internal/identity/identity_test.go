package identity

import (
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func TestNewUserAndLoadPrivateKeyCleartext(t *testing.T) {
	dir := t.TempDir()
	pubDir := filepath.Join(dir, "public_keys")
	privPath := filepath.Join(dir, "alice.key")

	if err := NewUser("alice", pubDir, privPath, ""); err != nil {
		t.Fatalf("NewUser: %v", err)
	}

	pubPEM, err := os.ReadFile(filepath.Join(pubDir, "alice.pem"))
	if err != nil {
		t.Fatalf("read public key: %v", err)
	}
	if block, _ := pem.Decode(pubPEM); block == nil || block.Type != "RSA PUBLIC KEY" {
		t.Fatalf("public key is not a PKCS1 PEM block")
	}

	username, priv, err := LoadPrivateKey(privPath, "")
	if err != nil {
		t.Fatalf("LoadPrivateKey: %v", err)
	}
	if username != "alice" {
		t.Errorf("username = %q, want alice", username)
	}
	if priv.Size()*8 != keySize {
		t.Errorf("key size = %d bits, want %d", priv.Size()*8, keySize)
	}
}

func TestNewUserWithPassphraseRejectsWrongOne(t *testing.T) {
	dir := t.TempDir()
	privPath := filepath.Join(dir, "bob.key")

	if err := NewUser("bob", filepath.Join(dir, "public_keys"), privPath, "correct horse battery staple"); err != nil {
		t.Fatalf("NewUser: %v", err)
	}

	if _, _, err := LoadPrivateKey(privPath, "wrong passphrase"); err == nil {
		t.Fatal("LoadPrivateKey with wrong passphrase succeeded, want error")
	}

	_, priv, err := LoadPrivateKey(privPath, "correct horse battery staple")
	if err != nil {
		t.Fatalf("LoadPrivateKey with correct passphrase: %v", err)
	}
	if priv == nil {
		t.Fatal("LoadPrivateKey returned a nil key")
	}
}

func TestInvalidUsernameRejected(t *testing.T) {
	dir := t.TempDir()
	err := NewUser("bad name!", dir, filepath.Join(dir, "x.key"), "")
	if err == nil {
		t.Fatal("expected error for invalid username")
	}
}
