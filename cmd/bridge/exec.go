package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/thereceipt/printer-bridge/internal/command"
)

func newExecCommand(a *app) *cobra.Command {
	var (
		apiURL string
		wait   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "exec <command>...",
		Short: "Run bridge commands",
		Long: `Run one or more bridge commands in order. Each argument is one
command; quote commands that take arguments.

Without --api the commands run against a bridge created for this process,
which binds first. With --api they are sent to a running 'bridge serve'.

Example:
  bridge exec "align 1" "text 'Corner Cafe'" "feed 3"
  bridge exec --api http://localhost:9300 status`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiURL != "" {
				for _, line := range args {
					result := postCommand(apiURL, line)
					printResult(line, result)
					if !result.Success {
						return fmt.Errorf("%s: %s", line, result.Error)
					}
				}
				return nil
			}

			b, closeBridge, err := a.newBridge()
			if err != nil {
				return err
			}
			defer closeBridge()

			if err := connect(cmd.Context(), b, wait); err != nil {
				return err
			}

			executor := command.NewExecutor(b)
			for _, line := range args {
				result := executor.Execute(cmd.Context(), line)
				printResult(line, result)
				if !result.Success {
					return fmt.Errorf("%s: %w", line, result.Err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "", "send commands to a running bridge API")
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to wait for the printer service")

	return cmd
}

// postCommand sends one command to the bridge API.
func postCommand(apiURL, line string) *command.Result {
	body, _ := json.Marshal(map[string]string{"command": line})

	resp, err := http.Post(strings.TrimSuffix(apiURL, "/")+"/command", "application/json", bytes.NewReader(body))
	if err != nil {
		return &command.Result{Error: fmt.Sprintf("failed to connect to bridge: %v", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &command.Result{Error: fmt.Sprintf("failed to read response: %v", err)}
	}

	// The API flattens Data into the top-level object.
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return &command.Result{Error: fmt.Sprintf("failed to parse response: %v", err)}
	}

	result := &command.Result{Data: map[string]any{}}
	for k, v := range raw {
		switch k {
		case "success":
			result.Success, _ = v.(bool)
		case "message":
			result.Message, _ = v.(string)
		case "error":
			result.Error, _ = v.(string)
		default:
			result.Data[k] = v
		}
	}
	return result
}
