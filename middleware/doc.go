// Package middleware adapts authcore engine checks to net/http.
//
// [Guard] verifies the bearer access token statelessly and injects the
// claims into the request context. [RequireActiveSession] additionally
// checks that the session behind the token has not been revoked, at the
// cost of one store read per request. [ClientContext] copies the client IP
// and user agent into the context so the engine can audit them.
//
// This package makes no authentication decisions of its own; every verdict
// comes from the engine.
package middleware
