// Package redis holds the Redis-backed pieces of the runtime: the identity
// ledger list and the shared client constructor used by the job queue.
package redis
