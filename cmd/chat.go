package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/giantswarm/kratos/internal/executor"
	"github.com/giantswarm/kratos/internal/logging"
	"github.com/giantswarm/kratos/internal/orchestrator"
)

const (
	chatPrompt         = "kratos> "
	continuationPrompt = "   ...> "

	// maxChatLineBytes bounds one input line.
	maxChatLineBytes = 1 << 20
)

// chatEngine is the part of the orchestrator the REPL drives.
type chatEngine interface {
	Submit(ctx context.Context, sessionID, utterance string) (*orchestrator.Response, error)
	EndSession(ctx context.Context, id string) error
}

func newChatCmd() *cobra.Command {
	var (
		rc        RuntimeConfig
		debugMode bool
		noColor   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Operate clusters from an interactive terminal session",
		Long: `Start a conversation session in the terminal.

Type requests in plain language, for example "show pods in kube-system" or
"scale frontend to 3 replicas in production". Type 'help' for examples,
'status' for agent and cluster status, 'functions' for the catalogue,
'reset' to start over and 'quit' to end the session.

Multi-line input such as a manifest is entered as a heredoc: end a line
with <<EOF, type the lines and finish with a line holding only EOF.

  kratos> apply this manifest <<EOF
     ...> apiVersion: v1
     ...> kind: Namespace
     ...> metadata:
     ...>   name: payments
     ...> EOF`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				color.NoColor = true
			}
			if !cmd.Flags().Changed("config") {
				loadEnvIfEmpty(&rc.ConfigPath, "KRATOS_CONFIG")
			}
			if !cmd.Flags().Changed("history-db") {
				loadEnvIfEmpty(&rc.HistoryDB, "KRATOS_HISTORY_DB")
			}
			return runChat(cmd, rc, debugMode)
		},
	}

	addRuntimeFlags(cmd, &rc)
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable coloured output")
	return cmd
}

func runChat(cmd *cobra.Command, rc RuntimeConfig, debugMode bool) error {
	// Only warnings reach the terminal unless debugging.
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	if debugMode {
		logger = logging.NewLogger(cmd.ErrOrStderr(), true)
	}
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rc.Logger = logger
	rc.Version = rootCmd.Version
	rt, err := newRuntime(ctx, rc)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("error closing runtime", logging.Err(err))
		}
	}()

	info, err := rt.orchestrator.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "kratos %s: session %s", rootCmd.Version, info.ID)
	if info.ActiveCluster != "" {
		_, _ = fmt.Fprintf(out, " on %s", color.New(color.Bold).Sprint(info.ActiveCluster))
	}
	_, _ = fmt.Fprintf(out, ", %d rounds. Type 'help' for examples.\n", info.MaxRounds)

	return chatLoop(ctx, rt.orchestrator, info.ID, cmd.InOrStdin(), out)
}

// chatLoop feeds lines from in to the session until it ends, in is
// exhausted or ctx is cancelled.
func chatLoop(ctx context.Context, engine chatEngine, sessionID string, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxChatLineBytes)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	prompt := color.New(color.FgCyan, color.Bold).Sprint(chatPrompt)
	contPrompt := color.New(color.FgCyan).Sprint(continuationPrompt)
	recv := func(p string) (string, bool) {
		_, _ = fmt.Fprint(out, p)
		select {
		case <-ctx.Done():
			return "", false
		case l, ok := <-lines:
			return l, ok
		}
	}

	for {
		line, ok := recv(prompt)
		if !ok {
			_, _ = fmt.Fprintln(out)
			return endChat(engine, sessionID)
		}
		if head, marker, isDoc := heredocStart(line); isDoc {
			var body []string
			for {
				l, ok := recv(contPrompt)
				if !ok {
					_, _ = fmt.Fprintln(out)
					return endChat(engine, sessionID)
				}
				if strings.TrimSpace(l) == marker {
					break
				}
				body = append(body, l)
			}
			line = head + "\n" + strings.Join(body, "\n")
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		resp, err := engine.Submit(ctx, sessionID, line)
		if err != nil {
			if errors.Is(err, orchestrator.ErrSessionEnded) {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return endChat(engine, sessionID)
			}
			return fmt.Errorf("turn failed: %w", err)
		}
		printResponse(out, resp)
		if resp.State == orchestrator.StateEnded {
			return nil
		}
	}
}

// heredocStart splits a line ending in <<MARKER into the text before it and
// the marker.
func heredocStart(line string) (head, marker string, ok bool) {
	trimmed := strings.TrimRight(line, " \t")
	idx := strings.LastIndex(trimmed, "<<")
	if idx < 0 {
		return "", "", false
	}
	marker = strings.TrimSpace(trimmed[idx+2:])
	if marker == "" || strings.ContainsAny(marker, " \t") {
		return "", "", false
	}
	return strings.TrimSpace(trimmed[:idx]), marker, true
}

func endChat(engine chatEngine, sessionID string) error {
	err := engine.EndSession(context.Background(), sessionID)
	if err != nil && !errors.Is(err, orchestrator.ErrSessionEnded) && !errors.Is(err, orchestrator.ErrSessionNotFound) {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

func printResponse(out io.Writer, resp *orchestrator.Response) {
	symbol, attr := responseStyle(resp)
	_, _ = fmt.Fprintf(out, "%s %s\n", color.New(attr).Sprint(symbol), resp.Message)
}

// responseStyle picks the status symbol of a response.
func responseStyle(resp *orchestrator.Response) (string, color.Attribute) {
	switch resp.Kind {
	case orchestrator.KindResult:
		if resp.Result != nil {
			switch resp.Result.Status {
			case executor.StatusPartial:
				return "⚠", color.FgYellow
			case executor.StatusFailed:
				return "✗", color.FgRed
			}
		}
		return "✓", color.FgGreen
	case orchestrator.KindClarification, orchestrator.KindNoMatch:
		return "?", color.FgYellow
	case orchestrator.KindError:
		return "✗", color.FgRed
	case orchestrator.KindEnded:
		return "■", color.FgMagenta
	}
	return "•", color.FgBlue
}
