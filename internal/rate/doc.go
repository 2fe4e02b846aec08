// Package rate provides the Redis-backed fixed-window attempt counter behind
// the engine's RateLimiter interface.
//
// # Window semantics
//
// INCR plus a conditional EXPIRE on the first hit of the window. Every call
// counts as an attempt; the verdict is count <= max. Callers choose key
// shapes ("login:<ip>", "pwreset:<email>") and budgets.
//
// # What this package must NOT do
//
//   - Decide which operations are limited or with what budgets.
//   - Be imported outside this module.
package rate
