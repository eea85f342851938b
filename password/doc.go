// Package password implements password hashing and composition policy checks.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// A fresh random salt is drawn per Hash call and verification compares digests
// in constant time. [Argon2.NeedsRehash] reports whether a stored hash was
// produced with weaker parameters so callers can re-hash on the next
// successful verification.
//
// # Architecture boundaries
//
// This package owns hashing, verification, and the pure [Policy] validator.
// Where and when the policy is enforced (registration, password change) is
// decided by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords — callers supply plaintext and receive hashes.
//   - Import any other sessionkit package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
