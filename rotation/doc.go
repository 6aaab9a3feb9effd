// Package rotation decides what happened to a long-lived secret after a
// credential-issuing call.
//
// The decision depends only on what the call returned:
//
//   - no secret field at all: [NoRotation]
//   - a secret whose digest differs from the stored one: [Rotated]
//   - a secret whose digest equals the stored one: [SameTokenReissued]
//
// An absent field and an unchanged field are different answers. Adapters build
// results with [Absent] or [Present] and must never fill a missing field with
// the previous secret.
package rotation
