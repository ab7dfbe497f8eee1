package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/thereceipt/printer-bridge/internal/command"
)

var (
	Primary = lipgloss.Color("#7C3AED") // Purple
	Success = lipgloss.Color("#10B981") // Green
	Warning = lipgloss.Color("#F59E0B") // Amber
	Error   = lipgloss.Color("#EF4444") // Red
	Muted   = lipgloss.Color("#6B7280") // Gray
)

var (
	labelStyle   = lipgloss.NewStyle().Foreground(Muted)
	successStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	commandStyle = lipgloss.NewStyle().Foreground(Primary)
)

func stateStyle(state string) lipgloss.Style {
	switch state {
	case "bound":
		return lipgloss.NewStyle().Foreground(Success).Bold(true)
	case "binding":
		return lipgloss.NewStyle().Foreground(Warning)
	default:
		return lipgloss.NewStyle().Foreground(Error)
	}
}

func printResult(line string, r *command.Result) {
	if !r.Success {
		fmt.Fprintf(os.Stderr, "%s %s %s\n", errorStyle.Render("✗"), commandStyle.Render(line), r.Error)
		return
	}
	fmt.Printf("%s %s %s\n", successStyle.Render("✓"), commandStyle.Render(line), r.Message)
	if state, ok := r.Data["state"].(string); ok {
		fmt.Printf("  %s %s\n", labelStyle.Render("state"), stateStyle(state).Render(state))
	}
}

func printSuccess(message string) {
	fmt.Printf("%s %s\n", successStyle.Render("✓"), message)
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("Error:"), err)
}

func printState(service, state string, pending int) {
	fmt.Printf("%s %s\n", labelStyle.Render("service"), service)
	fmt.Printf("%s   %s\n", labelStyle.Render("state"), stateStyle(state).Render(state))
	fmt.Printf("%s %d\n", labelStyle.Render("pending"), pending)
}
