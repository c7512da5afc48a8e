// Package redis opens the go-redis client shared by the session store and
// the session sync transports.
//
// Connect parses REDIS_URL and pings the server, retrying until it answers
// or the connect timeout expires. Healthcheck plugs into the readiness probe.
package redis
