package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	adminhttp "github.com/offertesting/outreach_services/internal/scheduler_service/adapters/http"
)

var hashAPIKeyCmd = &cobra.Command{
	Use:   "hash-api-key [key]",
	Short: "Print the auth.api_key_hash value for an admin API key",
	Long:  "Hashes the key given as argument, or read from the first line of stdin, for use as auth.api_key_hash.",
	Args:  cobra.MaximumNArgs(1),
	// Needs no configuration.
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading key from stdin: %w", err)
			}
			key = strings.TrimRight(line, "\r\n")
		}
		if strings.TrimSpace(key) == "" {
			return errors.New("api key must not be empty")
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), adminhttp.HashAPIKey(key))
		return err
	},
}

func init() {
	rootCmd.AddCommand(hashAPIKeyCmd)
}
