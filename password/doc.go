// Package password implements password strength checking, hashing, and
// verification with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification reads the cost parameters back out of the stored string, so
// parameter upgrades are transparent: [Hasher.NeedsUpgrade] reports when a
// hash should be recomputed on the next successful login.
//
// # Concurrency bound
//
// Argon2id is deliberately memory-hard, so unbounded concurrent hashing is a
// self-inflicted denial of service. Hash and Verify take a slot from a fixed
// pool before computing and respect context cancellation while waiting.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords — callers supply plaintext and receive hashes.
//   - Log plaintext passwords or hash parameters at runtime.
//   - Import any other authcore package.
package password
