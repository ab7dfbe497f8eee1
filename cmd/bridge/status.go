package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand(a *app) *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(strings.TrimSuffix(apiURL, "/") + "/status")
			if err != nil {
				return fmt.Errorf("failed to connect to bridge: %w", err)
			}
			defer resp.Body.Close()

			var status struct {
				State   string `json:"state"`
				Pending int    `json:"pending"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			printState(a.cfg.Locator.String(), status.State, status.Pending)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:9300", "bridge API URL")

	return cmd
}
