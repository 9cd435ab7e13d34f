// Package api provides the HTTP REST API and WebSocket gateway for
// Lumina Core.
//
// It exposes authentication (login, refresh, logout), user and role
// management, the device registry, sensor readings, and the audit trail
// to user interfaces. Routes are mounted under /{prefix}/v{version} and
// guarded by a per-route policy: public, authenticated, or
// permission-checked against the caller's role permissions.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
