package query

import (
	"testing"

	"github.com/phasma-db/phasmadb/internal/keyring"
)

func mustKeyring(t *testing.T) *keyring.Keyring {
	t.Helper()
	k, err := keyring.Generate()
	if err != nil {
		t.Fatalf("keyring.Generate: %v", err)
	}
	return k
}
