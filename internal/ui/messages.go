package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/olivier-w/harmonia/internal/engine"
)

// frameInterval paces both the visualizer redraw and the clock.
const frameInterval = time.Second / 30

type tickMsg time.Time

// playbackEndedMsg reports that t played to its end. Stale messages for a
// transport that is no longer primary are ignored.
type playbackEndedMsg struct{ t engine.Transport }

type crossfadeDoneMsg struct {
	to       engine.Transport
	index    int
	previous int
	err      error
}

type settingsSavedMsg struct{ err error }

func tickCmd() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type doneNotifier interface {
	Done() <-chan struct{}
}

// checkDone waits for t to finish when it can say so.
func checkDone(t engine.Transport) tea.Cmd {
	d, ok := t.(doneNotifier)
	if !ok {
		return nil
	}
	return func() tea.Msg {
		<-d.Done()
		return playbackEndedMsg{t: t}
	}
}
