// Package store defines the persistence contract of the authentication core:
// accounts, refresh credentials, one-time credentials, and the audit log.
//
// Secrets are never stored. Refresh and one-time credentials are keyed by the
// digest of their plaintext, and digests are globally unique.
//
// # Atomicity
//
// Implementations must provide three per-row guarantees:
//
//   - [RefreshCredentials.RotateRefresh] revokes the predecessor and inserts
//     the successor in one unit, conditional on the predecessor still being
//     valid. If the condition fails nothing is written.
//   - [OneTimeCredentials.ConsumeOneTime] is a single conditional update on
//     the used-at column.
//   - [Accounts.UpdateAccount] runs its mutation under a row lock.
//
// Every method takes a context; a deadline or transport failure is reported
// as [ErrUnavailable].
package store
