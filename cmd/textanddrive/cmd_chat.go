package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ahtavarasmus/TextAndDrive/internal/agent"
	"github.com/ahtavarasmus/TextAndDrive/internal/history"
)

var (
	chatVerbose bool

	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Type requests as if they were transcripts",
		Long: `Starts an interactive session. Every line is handled as one spoken request;
'clear' starts a fresh conversation, 'tools' lists the chat tools and 'exit' quits.`,
		Args: cobra.NoArgs,
		RunE: runChat,
	}
)

func init() {
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "print the tool result behind each confirmation")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := loadApp(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer a.Close()

	ag, err := a.buildAgent(ctx)
	if err != nil {
		return err
	}
	sessions, err := a.sessionManager()
	if err != nil {
		return err
	}
	sess, err := sessions.NewSession()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "TextAndDrive started!")
	if a.cfg.Tools.Enabled {
		fmt.Fprintf(out, "Chat tools: %d available (%s)\n", len(ag.Tools()), a.cfg.Tools.Transport)
	} else {
		fmt.Fprintln(out, "Chat tools: disabled")
	}
	fmt.Fprintf(out, "Max context messages: %d\n", sessions.Limit())
	fmt.Fprintln(out, "Type 'exit' to quit, 'clear' to reset conversation history.")

	// Piped input gets no prompts so the transcript stays readable.
	prompt := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	return chatLoop(ctx, cmd.InOrStdin(), out, cmd.ErrOrStderr(), ag, sessions, sess, prompt)
}

func chatLoop(ctx context.Context, in io.Reader, out, errOut io.Writer, ag *agent.Agent, sessions *history.Manager, sess *history.Session, prompt bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if prompt {
			fmt.Fprint(out, "You: ")
		}
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch input {
		case "exit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case "clear":
			if err := sessions.EndSession(sess.ID); err != nil {
				return err
			}
			next, err := sessions.NewSession()
			if err != nil {
				return err
			}
			sess = next
			fmt.Fprintln(out, "Conversation history cleared.")
			continue
		case "tools":
			fmt.Fprint(out, describeTools(ag.Tools()))
			continue
		}

		res, err := ag.ProcessTurn(ctx, sess, agent.TurnRequest{Transcript: input})
		if err != nil {
			fmt.Fprintf(errOut, "Error processing request: %v\n", err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		if res.ToolName != "" {
			fmt.Fprintf(out, "[%s]\n", res.ToolName)
		}
		if chatVerbose && res.SendResult != "" {
			fmt.Fprintf(out, "%s\n", res.SendResult)
		}
		if res.Confirmation == "" {
			fmt.Fprint(out, "Agent: (nothing to say)\n\n")
			continue
		}
		fmt.Fprintf(out, "Agent: %s\n\n", res.Confirmation)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("input error: %w", err)
	}
	return nil
}
