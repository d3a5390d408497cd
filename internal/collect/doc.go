// Package collect drives cursor-paginated relationship listings to exhaustion.
//
// A run fetches one page at a time, strictly sequentially, and stops on the first short page or
// the first terminal cursor. Runs are bounded by a page limit so a remote side that never stops
// handing out full pages fails with domain.ErrPaginationOverrun instead of looping forever.
package collect
