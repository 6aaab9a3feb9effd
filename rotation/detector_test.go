package rotation

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"
)

func sha(plaintext string) []byte {
	sum := sha256.Sum256([]byte(plaintext))
	return sum[:]
}

func TestDetectAbsentFieldIsNoRotation(t *testing.T) {
	d, err := Detect(sha("old"), Absent(), sha)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if d.Outcome != NoRotation {
		t.Fatalf("expected NoRotation, got %s", d.Outcome)
	}
	if d.NewHash != nil || d.NewPlaintext != "" {
		t.Fatalf("NoRotation must not carry a new secret: %+v", d)
	}
}

func TestDetectZeroValueIsAbsent(t *testing.T) {
	var result OptionalSecret
	d, err := Detect(sha("old"), result, sha)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if d.Outcome != NoRotation {
		t.Fatalf("expected zero value to mean absent, got %s", d.Outcome)
	}
}

func TestDetectSameSecretIsReissue(t *testing.T) {
	d, err := Detect(sha("old"), Present("old"), sha)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if d.Outcome != SameTokenReissued {
		t.Fatalf("expected SameTokenReissued, got %s", d.Outcome)
	}
}

func TestDetectChangedSecretIsRotated(t *testing.T) {
	d, err := Detect(sha("old"), Present("new"), sha)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if d.Outcome != Rotated {
		t.Fatalf("expected Rotated, got %s", d.Outcome)
	}
	if d.NewPlaintext != "new" || !bytes.Equal(d.NewHash, sha("new")) {
		t.Fatalf("unexpected rotated decision: %+v", d)
	}
}

func TestDetectPresentEmptyIsError(t *testing.T) {
	if _, err := Detect(sha("old"), Present(""), sha); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}

func TestOptionalSecretStringHidesValue(t *testing.T) {
	if got := Present("super-secret").String(); got != "present" {
		t.Fatalf("String leaked value: %q", got)
	}
	if got := Absent().String(); got != "absent" {
		t.Fatalf("unexpected String for absent: %q", got)
	}
}
