package tokens

import (
	"bytes"
	"testing"
)

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := New(Config{Pepper: []byte("0123456789abcdef"), Memory: 1024, Time: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestGenerateProducesDistinctURLSafeTokens(t *testing.T) {
	g := newTestGenerator(t)

	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		plain, digest, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !Valid(plain) {
			t.Fatalf("generated token is not valid: %q", plain)
		}
		if len(digest) != DigestSize {
			t.Fatalf("unexpected digest size %d", len(digest))
		}
		if _, dup := seen[plain]; dup {
			t.Fatalf("duplicate token generated: %q", plain)
		}
		seen[plain] = struct{}{}
	}
}

func TestDigestIsDeterministicAndPeppered(t *testing.T) {
	g := newTestGenerator(t)
	other, err := New(Config{Pepper: []byte("fedcba9876543210"), Memory: 1024, Time: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	plain, digest, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !bytes.Equal(g.Digest(plain), digest) {
		t.Fatal("expected digest to be deterministic")
	}
	if bytes.Equal(other.Digest(plain), digest) {
		t.Fatal("expected a different pepper to produce a different digest")
	}
	if bytes.Contains(digest, []byte(plain)) {
		t.Fatal("digest must not contain the plaintext")
	}
}

func TestValidRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "abc", "!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="} {
		if Valid(in) {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}

func TestNewRejectsShortPepper(t *testing.T) {
	if _, err := New(Config{Pepper: []byte("short"), Memory: 1024, Time: 1}); err == nil {
		t.Fatal("expected short pepper to be rejected")
	}
}

func FuzzValid(f *testing.F) {
	f.Add("")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	f.Add("!!!not-base64!!!")
	f.Fuzz(func(t *testing.T, input string) {
		_ = Valid(input)
	})
}
