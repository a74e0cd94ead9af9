// Package api exposes the HTTP status surface of a running session: the
// session snapshot, the session ledger, a health probe and Prometheus metrics.
package api
