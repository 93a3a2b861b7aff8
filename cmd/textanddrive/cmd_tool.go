package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahtavarasmus/TextAndDrive/internal/tools"
)

var (
	toolCmd = &cobra.Command{
		Use:   "tool",
		Short: "Inspect and call the chat tools directly",
	}
	toolListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the chat tools advertised to the LLM",
		Args:  cobra.NoArgs,
		RunE:  runToolList,
	}
	toolCallCmd = &cobra.Command{
		Use:     "call <name> [json-arguments]",
		Short:   "Call one chat tool",
		Example: `  textanddrive tool call get_messages '{"roomIds":"!room:x","limit":5}'`,
		Args:    cobra.RangeArgs(1, 2),
		RunE:    runToolCall,
	}
)

func init() {
	toolCmd.AddCommand(toolListCmd, toolCallCmd)
}

func runToolList(cmd *cobra.Command, args []string) error {
	a, err := loadApp(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer a.Close()

	tc, err := a.toolClient(cmd.Context())
	if err != nil {
		return err
	}
	defs, err := tc.List()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), describeTools(defs))
	return nil
}

func runToolCall(cmd *cobra.Command, args []string) error {
	toolArgs := tools.Arguments{}
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &toolArgs); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}

	a, err := loadApp(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer a.Close()

	tc, err := a.toolClient(cmd.Context())
	if err != nil {
		return err
	}
	result, err := tc.Call(cmd.Context(), args[0], toolArgs)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}
