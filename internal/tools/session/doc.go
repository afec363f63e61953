// Package session exposes kratos conversations as MCP tools. A client opens
// a session with kratos_new_session, sends utterances with kratos_submit and
// reads the transcript back with kratos_transcript.
package session
