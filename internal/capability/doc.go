// Package capability holds the catalogue of agents and the functions they
// expose.
//
// A Registry is populated once at startup and is read-only afterwards except
// through Reload, which swaps in a new immutable Snapshot. Every read
// operation works on exactly one snapshot, so a concurrent reload can never
// tear a lookup or a candidate search.
package capability
