// Package jwt issues and verifies short-lived access tokens.
//
// Tokens carry the subject, issued-at, expiry and a few non-sensitive claims
// (email, session id). Verification checks the signature before any time-based
// claim, and all failures collapse to [ErrInvalidToken] with an internal
// [Reason] kept for logging.
package jwt
