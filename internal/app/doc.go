// Package app provides the application service layer.
//
// Orchestrates use cases: graph builds (two concurrent pagination runs feeding the assembler),
// relationship listings, account lookup and search, and viewer settings.
// Depends on domain interfaces, not concrete implementations.
package app
