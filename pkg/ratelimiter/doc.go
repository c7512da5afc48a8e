// Package ratelimiter implements a token bucket limiter with pluggable
// state storage.
//
// A bucket holds up to Capacity tokens and regains RefillRate tokens every
// RefillInterval. Each request takes one token; an empty bucket denies.
// MemoryStore keeps buckets in process, RedisStore shares them between
// replicas through an atomic Lua script.
//
// Middleware applies a Limiter to an http.Handler keyed by a KeyFunc and
// reports the bucket state in X-RateLimit-* headers.
package ratelimiter
