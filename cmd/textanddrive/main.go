// cmd/textanddrive/main.go
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "textanddrive",
		Short: "Voice assistant for reading and sending chat messages hands-free",
		Long: `textanddrive turns a spoken request into a chat action: the transcript goes to an
LLM that picks a chat tool, the tool runs against the local chat store, and a short
confirmation is spoken back.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default config/config.yaml)")
	rootCmd.AddCommand(chatCmd, turnCmd, serveCmd, toolCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
