// Package auth provides authentication and authorisation for Lumina Core.
//
// It implements:
//   - RS256 access and refresh tokens signed with separate RSA key pairs
//   - Argon2id password hashing with constant-time verification
//   - Persisted, hashed refresh tokens with transactional rotation and
//     replay protection (tokens are bound to client IP and user agent)
//   - Database-backed roles and permissions, where a permission is an
//     HTTP method plus a normalised route path
//
// Authorisation follows an exact-match model: a request is allowed when one
// of the caller's roles carries a permission matching the request method and
// path. Roles flagged as system roles bypass permission checks entirely.
// Role and permission data is reloaded per request so revocations take
// effect immediately.
package auth
