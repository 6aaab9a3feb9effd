// Package provider defines the credential-issuing step of a refresh.
//
// Every upstream behaves differently: some rotate the long-lived secret on
// each refresh, some never return it, some echo it back unchanged. Each
// behavior is one [Adapter] variant, and the refresh flow depends only on the
// interface. Adapters report exactly what the upstream returned through
// [rotation.OptionalSecret].
package provider
