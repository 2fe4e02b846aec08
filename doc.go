// Package authcore implements the authentication and session-management core
// of a multi-user system: credential verification with Argon2id, JWT access
// and refresh tokens, Redis-backed revocable sessions, brute-force lockout,
// TOTP second factor, and password-reset / email-verification flows.
//
// The package is a library engine, not a server. The caller owns account
// persistence (implementing [AccountStore]), outbound email ([EmailSender]),
// and the HTTP surface; authcore owns the decision logic and the volatile
// state (sessions, reset tokens, rate-limit counters) in Redis. Service
// methods are safe to call from multiple goroutines after initialization
// through [Builder.Build].
//
// # Architecture boundaries
//
//   - authcore never renders role or permission semantics; it embeds the role
//     names the AccountStore resolved into the tokens it issues.
//   - authcore never stores plaintext secrets: passwords are Argon2id hashes,
//     reset-token secrets live in Redis as SHA-256 digests.
//   - Error values returned to callers stay generic ([ErrInvalidCredentials]
//     covers unknown accounts and wrong passwords alike); detail goes to the
//     audit sink.
//
// # Failure posture
//
// Security checks fail closed. If Redis or the AccountStore is unreachable
// while evaluating a rate limit, a lockout increment, or a session lookup,
// the operation is denied rather than allowed through.
package authcore
