// Package stores provides Redis-backed, short-lived challenge stores for the
// password-reset and email-verification flows.
//
// # Design
//
// Each store persists a versioned binary record {account id, sha256(secret),
// expiry} under the challenge's UUID, with a TTL. Reset challenges also keep
// a per-account pointer so issuing a new one atomically retires its
// predecessor: at most one redeemable reset token per account. Consumption
// is single-use — an optimistic WATCH/MULTI delete for resets, GETDEL for
// verifications — and secret comparison is constant time.
//
// # What this package must NOT do
//
//   - Generate token strings or send email; callers own both.
//   - Log or store plaintext secrets.
//   - Import authcore or any sibling package.
package stores
