package keyring

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// nameDomain separates table/column name hashing from any other future use
// of the keyring's salt, so the same salt can't be replayed across uses.
const nameDomain = "phasmadb:name:"

// HashName deterministically hashes a plaintext table or column name into
// its hex-encoded wire form. It is a keyed MAC, not a bare digest: without
// the keyring's salt it is infeasible to invert or to test a guessed name
// against the hash.
func (k *Keyring) HashName(name string) string {
	mac := hmac.New(sha256.New, k.NameSalt)
	mac.Write([]byte(nameDomain))
	mac.Write([]byte(name))
	return hex.EncodeToString(mac.Sum(nil))
}
