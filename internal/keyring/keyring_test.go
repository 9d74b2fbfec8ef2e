package keyring

import "testing"

func TestEnvelopeRoundTrip(t *testing.T) {
	k, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	type payload struct {
		A string `json:"a"`
		B int    `json:"b"`
	}
	want := payload{A: "dgsf@zoomer.union", B: 42}

	env, err := k.EncryptEnvelope(want)
	if err != nil {
		t.Fatalf("EncryptEnvelope: %v", err)
	}

	var got payload
	if err := k.DecryptEnvelope(env, &got); err != nil {
		t.Fatalf("DecryptEnvelope: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestEnvelopeRoundTripAcrossBlockBoundaries(t *testing.T) {
	k, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, n := range []int{0, 1, 15, 16, 17, 31, 32, 33, 100} {
		s := make([]byte, n)
		for i := range s {
			s[i] = 'x'
		}
		env, err := k.EncryptEnvelope(string(s))
		if err != nil {
			t.Fatalf("EncryptEnvelope(len=%d): %v", n, err)
		}
		var got string
		if err := k.DecryptEnvelope(env, &got); err != nil {
			t.Fatalf("DecryptEnvelope(len=%d): %v", n, err)
		}
		if got != string(s) {
			t.Errorf("len=%d: round trip mismatch", n)
		}
	}
}

func TestHashNameDeterministic(t *testing.T) {
	k, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if k.HashName("officers") != k.HashName("officers") {
		t.Errorf("HashName is not deterministic")
	}
	if k.HashName("officers") == k.HashName("Officers") {
		t.Errorf("HashName collided across distinct names")
	}
}

func TestHashNameKeyed(t *testing.T) {
	k1, _ := Generate()
	k2, _ := Generate()
	if k1.HashName("officers") == k2.HashName("officers") {
		t.Errorf("expected distinct keyrings to (almost certainly) hash the same name differently")
	}
}

func TestEncodeTextModes(t *testing.T) {
	k, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	plain := k.EncodeText(TextValue{Mode: TextPlain, Value: "Warhammer40k"})
	if _, ok := plain.(string); !ok {
		t.Errorf("TextPlain should encode to a single string token, got %T", plain)
	}

	prefixes := k.EncodeText(TextValue{Mode: TextPrefix, Value: "abc"}).([]string)
	if len(prefixes) != 3 {
		t.Errorf("expected 3 non-empty prefixes of \"abc\", got %d", len(prefixes))
	}

	words := k.EncodeText(TextValue{Mode: TextWord, Value: "Warhammer40k, Weeb!"}).([]string)
	if len(words) != 2 {
		t.Errorf("expected 2 word tokens, got %d: %v", len(words), words)
	}
}

func TestDecodeRowDropsNonIntegerCells(t *testing.T) {
	k, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	rank, err := k.EncodeInt(4)
	if err != nil {
		t.Fatalf("EncodeInt: %v", err)
	}
	hashedRank := k.HashName("officer_rank")
	hashedEmail := k.HashName("officer_email")

	indexed := map[string]interface{}{
		hashedRank:  float64(rank),
		hashedEmail: "opaque-token",
	}
	columnHashes := map[string]string{
		hashedRank:  "officer_rank",
		hashedEmail: "officer_email",
	}

	decoded := k.DecodeRow(indexed, columnHashes)
	if decoded["officer_rank"] != int64(4) {
		t.Errorf("expected officer_rank to decode to 4, got %v", decoded["officer_rank"])
	}
	if _, present := decoded["officer_email"]; present {
		t.Errorf("expected non-integer cell to be dropped from decoded view")
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	k, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	data, err := k.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	k2, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if k.HashName("x") != k2.HashName("x") {
		t.Errorf("reloaded keyring hashes differently")
	}
	c1, _ := k.EncodeInt(7)
	c2, _ := k2.EncodeInt(7)
	if c1 != c2 {
		t.Errorf("reloaded keyring encodes integers differently")
	}
}
