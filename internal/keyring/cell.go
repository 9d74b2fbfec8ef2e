package keyring

import "regexp"

// TextMode selects how a text-indexed cell's string value is tokenized
// before hashing.
type TextMode int

const (
	// TextPlain hashes the whole string as a single token.
	TextPlain TextMode = iota
	// TextPrefix hashes every non-empty prefix of the string, enabling
	// prefix-match queries against the resulting token set.
	TextPrefix
	// TextWord hashes every maximal run of [0-9A-Za-z] in the string,
	// enabling whole-word containment queries.
	TextWord
)

// wordPattern matches a maximal [0-9A-Za-z] run.
var wordPattern = regexp.MustCompile(`[0-9A-Za-z]+`)

// TextValue is a text-indexed cell's plaintext value together with the
// tokenization mode to apply before hashing.
type TextValue struct {
	Mode  TextMode
	Value string
}

// EncodeInt order-preservingly encodes an integer-valued (sort/unique)
// indexed cell.
func (k *Keyring) EncodeInt(x int64) (int64, error) {
	return k.OPEKey.Encrypt(x)
}

// DecodeInt reverses EncodeInt.
func (k *Keyring) DecodeInt(c int64) (int64, error) {
	return k.OPEKey.Decrypt(c)
}

// EncodeText encodes a text-indexed (text/unique_text) cell. TextPlain
// yields a single hashed token; TextPrefix and TextWord yield a token set
// (a []string) participating in containment queries.
func (k *Keyring) EncodeText(tv TextValue) interface{} {
	switch tv.Mode {
	case TextPrefix:
		runes := []rune(tv.Value)
		tokens := make([]string, 0, len(runes))
		for i := 1; i <= len(runes); i++ {
			tokens = append(tokens, k.HashName(string(runes[:i])))
		}
		return tokens
	case TextWord:
		words := wordPattern.FindAllString(tv.Value, -1)
		tokens := make([]string, 0, len(words))
		for _, w := range words {
			tokens = append(tokens, k.HashName(w))
		}
		return tokens
	default:
		return k.HashName(tv.Value)
	}
}

// DecodeRow applies columnHashes (hashed column -> plaintext column) to a
// row's indexed map, order-preserving-decoding integer cells and dropping
// every other cell: the plaintext of a text cell is recoverable only from
// the "extra" envelope, never from its index token.
func (k *Keyring) DecodeRow(indexed map[string]interface{}, columnHashes map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(columnHashes))
	for hashed, value := range indexed {
		plainName, wanted := columnHashes[hashed]
		if !wanted {
			continue
		}
		n, ok := asInt64(value)
		if !ok {
			continue
		}
		x, err := k.DecodeInt(n)
		if err != nil {
			continue
		}
		out[plainName] = x
	}
	return out
}

// asInt64 extracts an integer from a decoded-JSON value, which arrives as
// float64 for numeric cells.
func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
