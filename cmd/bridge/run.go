package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/thereceipt/printer-bridge/pkg/script"
)

func newRunCommand(a *app) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a print script",
		Long: `Run a JSON or YAML print script against the printer service.
The script stops at the first failing step.

Example:
  bridge run ./receipts/morning.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := script.ParseFile(args[0])
			if err != nil {
				return err
			}

			b, closeBridge, err := a.newBridge()
			if err != nil {
				return err
			}
			defer closeBridge()

			if err := connect(cmd.Context(), b, wait); err != nil {
				return err
			}

			start := time.Now()
			if err := script.Run(cmd.Context(), b, s); err != nil {
				return err
			}

			name := s.Name
			if name == "" {
				name = args[0]
			}
			printSuccess(fmt.Sprintf("%s: %d steps in %s", name, len(s.Steps), time.Since(start).Round(time.Millisecond)))
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to wait for the printer service")

	return cmd
}
