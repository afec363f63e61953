// Package intent maps a free-text utterance to a capability call.
//
// A Resolver returns exactly one of three outcomes: a *ResolvedCall ready to
// execute, a *Clarification naming the required parameters that could not be
// bound, or a *NoMatch when nothing scores above the confidence floor. The
// RuleResolver implementation is deterministic: identical utterance, history
// and candidates always produce the same outcome.
//
// Parameters bind with this precedence: a value in the current utterance, a
// value carried over from the preceding resolved call of the session, the
// capability default. Required parameters left unbound produce a
// Clarification.
package intent
