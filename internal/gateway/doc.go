// Package gateway orchestrates the vpn-gateway server components.
//
// # Overview
//
// Gateway owns the key-value store, the ID allocator, the registry, and the
// HTTP server. New opens the configured backend and initializes the counter;
// Run serves until its context is canceled and then shuts down gracefully.
//
// # HTTP Surface
//
//   - /api/v1/config/... and /api/v1/users/... - see package api
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (one store read)
//   - GET <metrics.path> - Prometheus exposition when metrics.enabled
//
// # Listeners
//
// With tailscale.enabled the gateway joins the tailnet through tsnet and
// listens on :80, or on :443 with Tailscale-issued certificates when
// tailscale.https is set. Otherwise it listens on server.http_addr.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//	...
//	cancel()
package gateway
