// Package authcore is an authentication and token-lifecycle engine: short-lived
// signed access tokens, long-lived opaque refresh tokens whose rotation is
// decided per provider, and account security policy (lockout, email
// verification, password reset).
//
// Build an [Engine] with [New]:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithStore(postgres.New(db)).
//		WithNotifier(notifier).
//		Build()
//
// Engine methods are safe for concurrent use. They translate component errors
// into a closed taxonomy: use errors.Is with the Err* sentinels or [KindOf].
// Token failures carry an internal reason, available through [ReasonOf], that
// is logged and audited but never part of the error string.
//
// # Architecture boundaries
//
// authcore is the public surface. Persistence lives behind the store
// interfaces; hashing, token generation, rotation detection and lockout are
// separate packages with no dependency on this one.
//
// # What this package must NOT do
//
//   - Persist or log plaintext secrets, refresh tokens or one-time tokens.
//   - Hold global mutable state. Every dependency is passed to the Builder.
//   - Return one-time tokens to callers; they go only to the Notifier.
package authcore
