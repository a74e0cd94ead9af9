// Package redis keeps session records in Redis: one hash per session plus a
// sorted index by initialization time.
package redis
