// Package internal contains helpers that are intentionally private to
// authcore: opaque token encoding and secure secret generation.
//
// # Sub-packages
//
//   - rate — Redis-backed fixed-window attempt counter
//   - stores — short-lived challenge stores (password reset, email verification)
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside this module.
package internal
