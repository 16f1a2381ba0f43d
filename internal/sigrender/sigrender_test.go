package sigrender

import (
	"strings"
	"testing"

	"github.com/mr-tron/base58"
)

func TestRenderPrefixAndLength(t *testing.T) {
	sig := make([]byte, 65)
	for i := range sig {
		sig[i] = byte(i)
	}
	got, err := Render(sig)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(got, prefix) {
		t.Fatalf("expected prefix %q, got %q", prefix, got)
	}
	// 65 signature bytes plus the 4-byte checksum.
	decoded, err := base58.Decode(got[len(prefix):])
	if err != nil {
		t.Fatalf("base58 decode: %v", err)
	}
	if len(decoded) != 69 {
		t.Fatalf("expected 69 decoded bytes, got %d", len(decoded))
	}
}

func TestRenderDeterministic(t *testing.T) {
	sig := make([]byte, 65)
	sig[0] = 1
	a, err := Render(sig)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	b, err := Render(sig)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if a != b {
		t.Fatalf("expected deterministic rendering, got %q vs %q", a, b)
	}
}

func TestRenderRejectsWrongLength(t *testing.T) {
	if _, err := Render(make([]byte, 10)); err == nil {
		t.Fatalf("expected error for short signature")
	}
}
