// Package ratelimit enforces per-identity request quotas for the comment
// pipeline.
//
// Operations fall into three classes with independent quotas. Read and
// moderation classes use fixed windows: the first request in a window
// starts its clock and the counter expires with it. The write class uses
// a token bucket, which absorbs legitimate bursts while capping sustained
// throughput at the refill rate.
//
// All counters live in a shared storage.CounterStore, so the quota holds
// across every process serving traffic. Each counter mutation is a single
// atomic store operation; there is no read-then-write window for two
// concurrent requests to slip through.
//
// # Failure policy
//
// When the counter store is unreachable the limiter fails open by default:
// the request proceeds, the result is marked FailedOpen, and an audit
// event records the bypass. Deployments that prefer strictness over
// availability set Config.FailClosed.
//
// # Abuse blocking
//
// Repeated failed attempts (authorization denials, tamper detections) are
// counted per identity; crossing the threshold inside the failure window
// sets a block flag that denies every operation class until it expires.
//
// Throttle is an optional in-process pre-filter ahead of the store. It is
// advisory only, it exists to shed hostile bursts before they cost store
// round trips, not to replace the shared decision.
package ratelimit
