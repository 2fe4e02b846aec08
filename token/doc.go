// Package token issues and verifies the three JWT families used by the
// authentication core: access, refresh, and temp (pending second factor).
//
// Every token carries a typ claim and verification demands an exact match,
// so a refresh token can never be replayed where an access token is
// expected. Access and refresh tokens additionally carry the session id and
// the session generation they were minted under; the session store uses the
// generation to cut off whole token families on revoke-all.
//
// # What this package must NOT do
//
//   - Touch Redis or any store — possession of a structurally valid token is
//     necessary but not sufficient; liveness checks belong to the caller.
//   - Import any other authcore package.
package token
