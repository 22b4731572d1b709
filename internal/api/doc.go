// Package api implements the vpn-gateway HTTP API.
//
// Configuration routes:
//
//	POST   /api/v1/config/      create, returns the new config_id
//	GET    /api/v1/config/      map of every config keyed by ID
//	GET    /api/v1/config/{id}  one config
//	PUT    /api/v1/config/{id}  replace one config
//	DELETE /api/v1/config/{id}  delete one config
//
// User routes:
//
//	POST /api/v1/users/      register
//	POST /api/v1/users/auth  exchange username and password for a bearer token
//	GET  /api/v1/users/me    the user named by the bearer token
//
// Storage outages answer 503, duplicate users 409, malformed input 400, and
// missing configs 404. Every error body is {"detail": "..."}.
package api
