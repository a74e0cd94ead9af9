// Package mysql persists session records in MySQL. It owns the connection
// pool setup and the embedded schema migrations for the session ledger.
package mysql
