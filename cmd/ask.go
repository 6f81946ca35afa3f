package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loftlabs/loft/internal/session"
)

var (
	askConversation string
	askShowThinking bool
)

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send a message to the assistant",
	Long: `Send a message to the assistant and stream its response.

The message comes from the argument, or from stdin when piped.
Pass --conversation to continue an earlier conversation; without it a
new one is created. Press Ctrl-C to stop a running turn; partial
output is kept.

Examples:
  loft ask "rename the User struct to Account"
  git diff | loft ask "review this change"
  loft ask "continue" -c 4f1f27aa-...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "Conversation ID to continue")
	askCmd.Flags().BoolVar(&askShowThinking, "thinking", false, "Show the model's reasoning stream")
}

func runAsk(cmd *cobra.Command, args []string) error {
	message, err := readMessage(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newService(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id, ch, err := svc.SubmitMessage(ctx, message, askConversation)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		svc.AbortSession()
	}()

	if err := renderStream(os.Stdout, ch, askShowThinking); err != nil {
		return err
	}
	svc.Wait()

	if pending := svc.PendingChanges(); len(pending) > 0 {
		fmt.Fprintf(os.Stderr, "\n%d pending file change(s). Review with: loft changes\n", len(pending))
	}
	if askConversation == "" {
		fmt.Fprintf(os.Stderr, "Conversation: %s\n", id)
	}
	return nil
}

func readMessage(args []string) (string, error) {
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	stat, err := os.Stdin.Stat()
	if err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		message := strings.TrimSpace(string(data))
		if len(args) == 1 {
			message = args[0] + "\n\n" + message
		}
		if message != "" {
			return message, nil
		}
	}
	return "", fmt.Errorf("no message given; pass one as an argument or pipe it on stdin")
}

// renderStream writes chunks to w until the channel closes. Returns an
// error when the stream ends with an error chunk.
func renderStream(w io.Writer, ch <-chan session.StreamChunk, showThinking bool) error {
	var streamErr error
	needNewline := false

	for chunk := range ch {
		switch chunk.Type {
		case session.ChunkText:
			fmt.Fprint(w, chunk.Content)
			needNewline = !strings.HasSuffix(chunk.Content, "\n")
		case session.ChunkReasoningStart:
			if showThinking {
				fmt.Fprint(w, "[thinking]\n")
			}
		case session.ChunkReasoning:
			if showThinking {
				fmt.Fprint(w, chunk.Content)
			}
		case session.ChunkReasoningEnd:
			if showThinking {
				fmt.Fprint(w, "\n[/thinking]\n")
				needNewline = false
			}
		case session.ChunkToolCall:
			if needNewline {
				fmt.Fprintln(w)
				needNewline = false
			}
			fmt.Fprintf(w, "* %s %s\n", chunk.ToolName, summarizeArgs(chunk.ToolArgs))
		case session.ChunkToolResult:
			if chunk.IsError {
				fmt.Fprintf(w, "  ! %s\n", firstLine(chunk.ToolOutput))
			}
		case session.ChunkError:
			streamErr = fmt.Errorf("%s", chunk.Content)
		case session.ChunkDone:
		}
	}

	if needNewline {
		fmt.Fprintln(w)
	}
	return streamErr
}

// summarizeArgs renders tool arguments on one line, truncated.
func summarizeArgs(raw []byte) string {
	s := strings.Join(strings.Fields(string(raw)), " ")
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
