// Package history is the append-only record of conversation turns and tool
// executions.
//
// Each session owns an ordered transcript whose turn indexes start at 1 and
// increase without gaps. Executions are kept alongside the transcript in the
// audit shape {timestamp, agent, function, parameters, result}.
//
// Two stores are provided: MemoryStore for single-process use and tests, and
// SQLiteStore for transcripts that must survive restarts.
package history
