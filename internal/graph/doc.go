// Package graph turns a center account and its follower and following lists
// into the node/link payload served to viewers. It performs no I/O.
package graph
