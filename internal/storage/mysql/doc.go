// Package mysql persists the identity ledger in MySQL. It owns the connection
// pool settings and applies the embedded schema migrations on startup.
package mysql
