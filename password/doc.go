// Package password implements credential hashing and the secret complexity policy.
//
// # Output format
//
// New digests are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification also accepts bcrypt digests imported from older systems. Both
// legacy bcrypt digests and Argon2id digests produced with weaker parameters
// report [Hasher.NeedsUpgrade] so the caller can re-hash after the next
// successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve credentials. Callers supply plaintext and receive digests.
//   - Import any other authcore package.
//   - Log plaintext secrets.
package password
