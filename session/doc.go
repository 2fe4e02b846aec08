// Package session provides Redis-backed, revocable session persistence with
// a compact binary encoding for authentication hot paths.
//
// # Binary encoding
//
// Sessions are stored as a fixed-offset binary header (flags, timestamps,
// generation) followed by length-prefixed strings. The fixed header lets the
// store's Lua scripts patch a session in place — close it, stamp activity —
// without a round trip through the Go decoder.
//
// # Revocation model
//
// Each account carries a generation counter. Sessions embed the counter
// value at creation; CloseAll bumps it atomically, which invalidates every
// outstanding session and every token minted under the old value in one
// Redis operation. Session creation compare-and-sets against the counter, so
// a login racing a revoke-all can never land on a dead generation.
//
// # What this package must NOT do
//
//   - Import authcore or token (no upward imports).
//   - Interpret JWTs or make authentication policy decisions.
//   - Store plaintext credentials in [Session] fields.
package session
