// Package hub fans messages out to live viewer connections using the actor pattern.
//
// A single goroutine owns the connection set and processes commands from a channel (no mutexes).
// Every connection gets a mailbox goroutine that delivers messages in broadcast order, so one
// stalled viewer only ever costs its own deliveries.
package hub
