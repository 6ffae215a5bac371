package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	ticketUserID int64
	ticketName   string
	ticketTTL    string

	rootCmd = &cobra.Command{
		Use:           "puzzlebot",
		Short:         "Chat bot that collects answers to numbered puzzles",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and websocket chat server",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE:  runMigrate,
	}

	ticketCmd = &cobra.Command{
		Use:   "ticket",
		Short: "Mint a gateway ticket for a chat user",
		RunE:  runTicket,
	}
)

func init() {
	ticketCmd.Flags().Int64Var(&ticketUserID, "user-id", 0, "chat user id the ticket is issued for")
	ticketCmd.Flags().StringVar(&ticketName, "name", "", "chat display name")
	ticketCmd.Flags().StringVar(&ticketTTL, "ttl", "24h", "ticket lifetime, 0 for no expiry")
	ticketCmd.MarkFlagRequired("user-id")

	rootCmd.AddCommand(serveCmd, migrateCmd, ticketCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString("puzzlebot: " + err.Error() + "\n")
		os.Exit(1)
	}
}
