// Package valkey provides a Valkey/Redis-backed implementation of the
// shared atomic counter/bucket store. The fixed-window increment and the
// token bucket check-and-decrement run as Lua scripts so each rate-limit
// decision is a single atomic step across all pipeline instances.
package valkey
