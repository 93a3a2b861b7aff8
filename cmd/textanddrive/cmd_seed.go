package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahtavarasmus/TextAndDrive/internal/chatdata"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load chats, contacts and messages from a YAML fixture into the chat database",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	a, err := loadApp(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer a.Close()

	dbPath := a.cfg.ChatData.DBPath
	if dbPath == "" || dbPath == ":memory:" {
		return fmt.Errorf("chatdata.db_path must name a file to seed")
	}
	fixture, err := chatdata.LoadFixture(args[0])
	if err != nil {
		return err
	}
	store, err := chatdata.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Seed(cmd.Context(), fixture); err != nil {
		return err
	}
	a.logger.Info("chat database seeded", "db", dbPath, "chats", len(fixture.Chats),
		"contacts", len(fixture.Contacts), "messages", len(fixture.Messages))
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d chats, %d contacts, %d messages into %s\n",
		len(fixture.Chats), len(fixture.Contacts), len(fixture.Messages), dbPath)
	return nil
}
