package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ahtavarasmus/TextAndDrive/internal/agent"
	"github.com/ahtavarasmus/TextAndDrive/internal/voice"
)

var (
	turnAudio     string
	turnKeepAudio bool

	turnCmd = &cobra.Command{
		Use:   "turn [transcript...]",
		Short: "Run a single request from text or a recorded audio file",
		Example: `  textanddrive turn "send a message to Rasmus saying I'll be late"
  textanddrive turn --audio recording.wav`,
		RunE: runTurn,
	}
)

func init() {
	turnCmd.Flags().StringVar(&turnAudio, "audio", "", "recorded request to transcribe instead of a text transcript")
	turnCmd.Flags().BoolVar(&turnKeepAudio, "keep-audio", false, "keep the synthesized confirmation and print its path")
}

func runTurn(cmd *cobra.Command, args []string) error {
	transcript := strings.TrimSpace(strings.Join(args, " "))
	if (transcript == "") == (turnAudio == "") {
		return fmt.Errorf("give either a transcript or --audio")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := loadApp(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer a.Close()

	sessions, err := a.sessionManager()
	if err != nil {
		return err
	}
	sess, err := sessions.NewSession()
	if err != nil {
		return err
	}
	defer sessions.EndSession(sess.ID)

	out := cmd.OutOrStdout()
	if turnAudio == "" {
		ag, err := a.buildAgent(ctx)
		if err != nil {
			return err
		}
		res, err := ag.ProcessTurn(ctx, sess, agent.TurnRequest{Transcript: transcript})
		if err != nil {
			return err
		}
		printTurn(cmd, res)
		return nil
	}

	p, err := a.pipeline(ctx, true)
	if err != nil {
		return err
	}
	outcome, err := p.HandleRecording(ctx, sess, turnAudio)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Transcript: %s\n", outcome.Transcript)
	printTurn(cmd, outcome.Turn)
	return finishAudio(cmd, outcome)
}

func printTurn(cmd *cobra.Command, res *agent.TurnResult) {
	out := cmd.OutOrStdout()
	if res.ToolName != "" {
		fmt.Fprintf(out, "Tool: %s\n", res.ToolName)
	}
	fmt.Fprintf(out, "Confirmation (%s): %s\n", res.Source, res.Confirmation)
}

func finishAudio(cmd *cobra.Command, outcome *voice.Outcome) error {
	if outcome.AudioPath == "" {
		return nil
	}
	if turnKeepAudio {
		fmt.Fprintf(cmd.OutOrStdout(), "Audio: %s\n", outcome.AudioPath)
		return nil
	}
	return outcome.Cleanup()
}
