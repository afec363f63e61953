// Package clusterctx tracks the known clusters and which one is active.
//
// The Manager owns the shared, read-mostly set of clusters and a default
// active cluster. Each conversation gets its own View so that switching
// clusters in one session never changes the target of another.
package clusterctx
