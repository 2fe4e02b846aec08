// Package middleware exposes HTTP adapters over the Service.
//
//   - [Guard] reads the Authorization header, validates the access token and
//     its session, and injects the claims into the request context.
//   - [RequireRole] layers a role check on top of Guard.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Service calls. It does NOT
// implement authentication logic itself; every decision is delegated to
// Service.VerifyAccess.
package middleware
