// Package redis relays viewer messages between server instances over Redis pub/sub.
//
// Every command passes through a failsafe-go circuit breaker hook and a metrics hook, so an
// unreachable Redis degrades the relay to local-only fan-out instead of stalling sessions.
package redis
