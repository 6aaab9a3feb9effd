package rotation

import (
	"crypto/subtle"
	"errors"
	"fmt"
)

// ErrEmptySecret is returned when a result carries a secret field with an
// empty value.
var ErrEmptySecret = errors.New("rotation: secret field present but empty")

// OptionalSecret is a long-lived secret that a credential-issuing call may or
// may not have returned. The zero value is absent.
type OptionalSecret struct {
	value   string
	present bool
}

// Absent reports that the call returned no secret field.
func Absent() OptionalSecret {
	return OptionalSecret{}
}

// Present wraps a secret the call returned, even if it equals the one the
// caller already holds.
func Present(value string) OptionalSecret {
	return OptionalSecret{value: value, present: true}
}

// Get returns the secret and whether the field was present.
func (s OptionalSecret) Get() (string, bool) {
	return s.value, s.present
}

// IsPresent reports whether the field was returned.
func (s OptionalSecret) IsPresent() bool {
	return s.present
}

// String never reveals the secret.
func (s OptionalSecret) String() string {
	if !s.present {
		return "absent"
	}
	return "present"
}

// Outcome is the closed set of rotation decisions.
type Outcome uint8

const (
	NoRotation Outcome = iota
	Rotated
	SameTokenReissued
)

func (o Outcome) String() string {
	switch o {
	case NoRotation:
		return "no_rotation"
	case Rotated:
		return "rotated"
	case SameTokenReissued:
		return "same_token_reissued"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// Decision is the result of Detect. NewPlaintext and NewHash are set only for
// Rotated.
type Decision struct {
	Outcome      Outcome
	NewPlaintext string
	NewHash      []byte
}

// DigestFunc maps a plaintext secret to its stored digest.
type DigestFunc func(plaintext string) []byte

// Detect compares the secret in result with the stored digest oldHash.
func Detect(oldHash []byte, result OptionalSecret, digest DigestFunc) (Decision, error) {
	value, ok := result.Get()
	if !ok {
		return Decision{Outcome: NoRotation}, nil
	}
	if value == "" {
		return Decision{}, ErrEmptySecret
	}

	newHash := digest(value)
	if subtle.ConstantTimeCompare(newHash, oldHash) == 1 {
		return Decision{Outcome: SameTokenReissued}, nil
	}

	return Decision{
		Outcome:      Rotated,
		NewPlaintext: value,
		NewHash:      newHash,
	}, nil
}
