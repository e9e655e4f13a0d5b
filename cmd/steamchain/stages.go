package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var stderr io.Writer = os.Stderr

var (
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// stage runs one step of a command, reporting progress on stderr. action
// returns a short status shown next to the finished step.
func stage(name string, action func() (string, error)) error {
	start := time.Now()
	fmt.Fprintf(stderr, "%s %s...\n", runningStyle.Render("▶"), name)

	status, err := action()
	if err != nil {
		fmt.Fprintf(stderr, "%s %s: %v\n", failedStyle.Render("✗"), name, err)
		return err
	}

	label := name
	if status != "" {
		label += " · " + status
	}
	elapsed := time.Since(start).Truncate(time.Millisecond)
	fmt.Fprintf(stderr, "%s %s %s\n", doneStyle.Render("✓"), label, mutedStyle.Render(elapsed.String()))
	return nil
}
