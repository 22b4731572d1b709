// Package metrics provides the Recorder used by the registry and HTTP façade,
// with a Prometheus implementation served on the configured metrics path.
package metrics
