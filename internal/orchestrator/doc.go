// Package orchestrator runs conversations: it owns sessions, drives each one
// through the AwaitingInput → Resolving → (Clarifying | Executing) →
// Reporting → AwaitingInput cycle and ends them on an exit command or when
// the round limit is reached.
//
// A session processes one utterance at a time. Sessions are independent:
// each has its own cluster view, pending clarification and round counter,
// while the capability registry and the cluster manager are shared.
//
// Submit returns an error only when the utterance could not be processed at
// all (unknown or ended session, cancelled context, history failure). Turn
// level outcomes such as NoMatch, a clarification or a failed execution are
// reported in the Response, with Response.Err set to the matching sentinel.
package orchestrator
