package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/olivier-w/harmonia/internal/engine"
	"github.com/olivier-w/harmonia/internal/util"
)

// sleepFade is how long the sleep timer takes to fade playback out.
const sleepFade = time.Second

// sleepDurations are the sleep timer settings the key steps through before
// switching the timer off again.
var sleepDurations = []time.Duration{
	15 * time.Minute,
	30 * time.Minute,
	60 * time.Minute,
	90 * time.Minute,
}

type sleepFadeDoneMsg struct{ err error }

// cycleSleep moves the sleep timer to the next duration, or off after the
// longest. Pressing it while the timer is fading out cancels the fade.
func (m *Model) cycleSleep() {
	if m.sleepFading {
		m.cancelSleep()
		m.clearSleep()
		m.setStatus("sleep timer cancelled")
		return
	}
	m.sleepStep++
	if m.sleepStep >= len(sleepDurations) {
		m.clearSleep()
		m.setStatus("sleep timer off")
		return
	}
	d := sleepDurations[m.sleepStep]
	m.sleepDeadline = m.now().Add(d)
	m.setStatus(fmt.Sprintf("sleep in %d min", int(d.Minutes())))
}

func (m *Model) clearSleep() {
	m.sleepStep = -1
	m.sleepDeadline = time.Time{}
}

// sleepRemaining is the time left on the timer; ok is false when it is off.
func (m Model) sleepRemaining() (time.Duration, bool) {
	if m.sleepDeadline.IsZero() {
		return 0, false
	}
	return max(m.sleepDeadline.Sub(m.now()), 0), true
}

// checkSleep starts the fade once the timer runs out. A running crossfade
// holds it off until the next tick.
func (m *Model) checkSleep() tea.Cmd {
	left, ok := m.sleepRemaining()
	if !ok || left > 0 || m.sleepFading || m.fading {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelSleep = cancel
	m.sleepFading = true
	m.sleepDeadline = time.Time{}
	return fadeOutCmd(ctx, m.eng, sleepFade)
}

func fadeOutCmd(ctx context.Context, eng *engine.Engine, d time.Duration) tea.Cmd {
	return func() tea.Msg {
		return sleepFadeDoneMsg{err: eng.FadeOutAndStop(ctx, d)}
	}
}

func (m Model) handleSleepDone(msg sleepFadeDoneMsg) (tea.Model, tea.Cmd) {
	if m.cancelSleep != nil {
		m.cancelSleep()
		m.cancelSleep = nil
	}
	// the tick marks the shared fade slot as a crossfade
	m.fading = false
	m.sleepFading = false
	m.clearSleep()

	switch {
	case msg.err == nil:
		m.paused = true
		m.setStatus("stopped by sleep timer")
		return m, tea.SetWindowTitle(windowTitle(m.meta.Title, true))
	case errors.Is(msg.err, context.Canceled):
		return m, nil
	default:
		m.setError(msg.err)
		m.log.WithError(msg.err).Warn("sleep timer fade failed")
		return m, nil
	}
}

func renderSleep(left time.Duration) string {
	return "[sleep " + util.FormatDuration(left) + "]"
}
