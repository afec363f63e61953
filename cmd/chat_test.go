package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kratos/internal/executor"
	"github.com/giantswarm/kratos/internal/orchestrator"
)

type scriptedEngine struct {
	replies   map[string]*orchestrator.Response
	submitted []string
	ended     bool
}

func (e *scriptedEngine) Submit(_ context.Context, _ string, utterance string) (*orchestrator.Response, error) {
	e.submitted = append(e.submitted, utterance)
	if resp, ok := e.replies[utterance]; ok {
		return resp, nil
	}
	return &orchestrator.Response{Kind: orchestrator.KindNoMatch, Message: "I did not understand."}, nil
}

func (e *scriptedEngine) EndSession(context.Context, string) error {
	e.ended = true
	return nil
}

func TestChatLoop(t *testing.T) {
	color.NoColor = true

	engine := &scriptedEngine{replies: map[string]*orchestrator.Response{
		"get pods": {Kind: orchestrator.KindResult, Message: "3 pods in default.", Result: &executor.Result{Status: executor.StatusOK}},
		"quit":     {Kind: orchestrator.KindEnded, Message: "Goodbye.", State: orchestrator.StateEnded},
	}}
	in := strings.NewReader("get pods\n\nrestart\nquit\nget pods\n")
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), engine, "s1", in, &out))

	assert.Equal(t, []string{"get pods", "restart", "quit"}, engine.submitted, "blank lines are skipped and input stops at the end")
	assert.Contains(t, out.String(), "✓ 3 pods in default.")
	assert.Contains(t, out.String(), "? I did not understand.")
	assert.Contains(t, out.String(), "■ Goodbye.")
	assert.False(t, engine.ended, "the orchestrator already ended the session")
}

func TestChatLoopEndsSessionAtEOF(t *testing.T) {
	color.NoColor = true

	engine := &scriptedEngine{}
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), engine, "s1", strings.NewReader("hello\n"), &out))
	assert.True(t, engine.ended)
}

func TestChatLoopHeredoc(t *testing.T) {
	color.NoColor = true

	engine := &scriptedEngine{}
	in := strings.NewReader("apply this manifest <<EOF\napiVersion: v1\nkind: Namespace\nmetadata:\n  name: payments\nEOF\n")
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), engine, "s1", in, &out))

	require.Len(t, engine.submitted, 1)
	assert.Equal(t, "apply this manifest\napiVersion: v1\nkind: Namespace\nmetadata:\n  name: payments", engine.submitted[0])
	assert.Contains(t, out.String(), continuationPrompt)
}

func TestChatLoopLongLine(t *testing.T) {
	color.NoColor = true

	engine := &scriptedEngine{}
	long := "apply " + strings.Repeat("x", 100*1024)
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), engine, "s1", strings.NewReader(long+"\n"), &out))
	require.Len(t, engine.submitted, 1)
	assert.Equal(t, long, engine.submitted[0])
}

func TestHeredocStart(t *testing.T) {
	tests := []struct {
		line   string
		head   string
		marker string
		ok     bool
	}{
		{line: "apply <<EOF", head: "apply", marker: "EOF", ok: true},
		{line: "apply this <<END  ", head: "apply this", marker: "END", ok: true},
		{line: "<<EOF", head: "", marker: "EOF", ok: true},
		{line: "get pods", ok: false},
		{line: "apply <<", ok: false},
		{line: "a << b c", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			head, marker, ok := heredocStart(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.head, head)
				assert.Equal(t, tt.marker, marker)
			}
		})
	}
}

func TestResponseStyle(t *testing.T) {
	tests := []struct {
		name   string
		resp   *orchestrator.Response
		symbol string
	}{
		{"ok", &orchestrator.Response{Kind: orchestrator.KindResult}, "✓"},
		{"partial", &orchestrator.Response{Kind: orchestrator.KindResult, Result: &executor.Result{Status: executor.StatusPartial}}, "⚠"},
		{"failed", &orchestrator.Response{Kind: orchestrator.KindResult, Result: &executor.Result{Status: executor.StatusFailed}}, "✗"},
		{"clarification", &orchestrator.Response{Kind: orchestrator.KindClarification}, "?"},
		{"error", &orchestrator.Response{Kind: orchestrator.KindError}, "✗"},
		{"ended", &orchestrator.Response{Kind: orchestrator.KindEnded}, "■"},
		{"info", &orchestrator.Response{Kind: orchestrator.KindInfo}, "•"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			symbol, _ := responseStyle(tt.resp)
			assert.Equal(t, tt.symbol, symbol)
		})
	}
}

func TestChatCmdProperties(t *testing.T) {
	cmd := newChatCmd()

	assert.Equal(t, "chat", cmd.Use)
	assert.Contains(t, cmd.Long, "quit")
	for _, name := range []string{"config", "kubeconfig", "history-db", "non-destructive", "dry-run", "no-color"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag %s should exist", name)
	}
}
