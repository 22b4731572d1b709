// Package auth provides authentication for the vpn-gateway HTTP API.
//
// Users exchange a username and password for an HS256 JWT whose subject is
// the username. HTTPAuthMiddleware verifies the token on each request, loads
// the user from the registry, and exposes it through FromContext. A token for
// a user that no longer exists is rejected.
package auth
