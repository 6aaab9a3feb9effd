// Package rate provides the Redis fixed-window throttle used in front of
// login, registration and password reset requests.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - rl:<bucket>:id: per normalized identifier (email)
//   - rl:<bucket>:ip: per client address
//
// A nil *Limiter allows everything.
package rate
