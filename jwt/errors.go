package jwt

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is matched by every Parse failure.
var ErrInvalidToken = errors.New("jwt: invalid token")

// Reason is the internal cause of a parse failure. It is meant for logs and
// audit metadata, not for callers at the transport boundary.
type Reason string

const (
	ReasonMalformed   Reason = "malformed"
	ReasonSignature   Reason = "signature"
	ReasonExpired     Reason = "expired"
	ReasonNotYetValid Reason = "not_yet_valid"
	ReasonClaims      Reason = "claims"
)

// ParseError carries the internal Reason of a rejected token.
type ParseError struct {
	Reason Reason
	err    error
}

func (e *ParseError) Error() string {
	return ErrInvalidToken.Error() + " (" + string(e.Reason) + ")"
}

// Is makes every ParseError match ErrInvalidToken.
func (e *ParseError) Is(target error) bool {
	return target == ErrInvalidToken
}

func (e *ParseError) Unwrap() error {
	return e.err
}

// ReasonOf returns the Reason attached to err, or an empty Reason when err is
// not a parse failure.
func ReasonOf(err error) Reason {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ""
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return ReasonSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ReasonNotYetValid
	default:
		return ReasonClaims
	}
}
