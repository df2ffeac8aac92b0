package security

import (
	"testing"
)

func TestNewOpaqueToken(t *testing.T) {
	a, err := NewOpaqueToken()
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewOpaqueToken()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two tokens are identical")
	}
	if len(a) != 43 {
		t.Errorf("token length = %d, want 43", len(a))
	}
	if LooksLikeJWT(a) {
		t.Error("opaque token must not look like a JWT")
	}
}

func TestHashToken(t *testing.T) {
	h := HashToken("token-1")
	if len(h) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(h))
	}
	if h != HashToken("token-1") {
		t.Error("hash is not deterministic")
	}
	if h == HashToken("token-2") {
		t.Error("different tokens hash equal")
	}
	if !TokenHashEqual("token-1", h) {
		t.Error("TokenHashEqual should match")
	}
	if TokenHashEqual("token-2", h) {
		t.Error("TokenHashEqual should not match another token")
	}
}

func TestLooksLikeJWT(t *testing.T) {
	tests := map[string]bool{
		"a.b.c":   true,
		"a.b":     false,
		"a..c":    false,
		"opaque":  false,
		"a.b.c.d": false,
		"":        false,
	}
	for in, want := range tests {
		if got := LooksLikeJWT(in); got != want {
			t.Errorf("LooksLikeJWT(%q) = %v, want %v", in, got, want)
		}
	}
}
