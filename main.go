package main

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/olivier-w/harmonia/internal/media"
	"github.com/olivier-w/harmonia/internal/ui"
)

func main() {
	args := os.Args[1:]

	if len(args) == 0 {
		path, ok := browse()
		if !ok {
			os.Exit(0)
		}
		args = []string{path}
	}

	s, err := openSession(args)
	if err != nil {
		if errors.Is(err, media.ErrNoTracks) {
			fmt.Fprintf(os.Stderr, "Error: %v (supported: %s)\n", err, media.SupportedExts())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}

	program := tea.NewProgram(s.model(), tea.WithAltScreen())
	_, err = program.Run()
	s.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// browse lets the user pick a track or playlist from the working directory.
func browse() (string, bool) {
	browser := ui.NewBrowser(".")
	if browser.HasError() {
		fmt.Fprintf(os.Stderr, "Error: %v\n", browser.Error())
		os.Exit(1)
	}
	if browser.Empty() {
		fmt.Fprintf(os.Stderr, "Nothing to play here (supported: %s)\n", media.SupportedExts())
		os.Exit(1)
	}

	finalModel, err := tea.NewProgram(browser, tea.WithAltScreen()).Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	bm, ok := finalModel.(ui.BrowserModel)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unexpected model type from browser\n")
		os.Exit(1)
	}
	result := bm.Result()
	return result.Path, !result.Cancelled
}
