package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/olivier-w/harmonia/internal/effects"
	"github.com/olivier-w/harmonia/internal/engine"
	"github.com/olivier-w/harmonia/internal/logging"
	"github.com/olivier-w/harmonia/internal/player"
	"github.com/olivier-w/harmonia/internal/queue"
	"github.com/olivier-w/harmonia/internal/settings"
	"github.com/olivier-w/harmonia/internal/termimg"
	"github.com/olivier-w/harmonia/internal/util"
	"github.com/olivier-w/harmonia/internal/visualizer"
)

const (
	seekStep   = 5 * time.Second
	volumeStep = 0.05
	rateStep   = 0.1
	gainStep   = 1.0

	// restartThreshold is how far into a track "previous" restarts it
	// instead of moving back.
	restartThreshold = 3 * time.Second

	statusTTL    = 5 * time.Second
	saveInterval = 500 * time.Millisecond

	// Each terminal cell is cellUnitsX by cellUnitsY logical units on the
	// visualizer surface, drawn at vizPixelRatio device pixels per unit.
	cellUnitsX    = 4
	cellUnitsY    = 8
	vizPixelRatio = 2

	// chromeLines is everything View draws besides the visualizer.
	chromeLines   = 18
	fullHelpLines = 5
	minVizRows    = 3
)

// Opener opens a track, paused, for playback.
type Opener func(path string) (engine.Transport, error)

// Config wires a Model to the rest of the player.
type Config struct {
	Engine     *engine.Engine
	Visualizer *visualizer.Renderer
	Surface    *visualizer.RasterSurface
	Image      *termimg.Renderer
	Store      *settings.Store
	Settings   settings.Settings
	Queue      *queue.Queue
	Open       Opener
	Log        logrus.FieldLogger
}

// Model is the Bubbletea model for the harmonia TUI.
type Model struct {
	eng     *engine.Engine
	viz     *visualizer.Renderer
	surface *visualizer.RasterSurface
	img     *termimg.Renderer
	store   *settings.Store
	base    settings.Settings
	queue   *queue.Queue
	open    Opener
	log     logrus.FieldLogger

	keys     keyMap
	help     help.Model
	bar      progress.Model
	fadeBar  progress.Model
	meters   springField // one per EQ band, then volume
	meta     player.Metadata
	elapsed  time.Duration
	duration time.Duration
	volume   float64
	paused   bool
	repeat   RepeatMode

	crossfade  time.Duration
	fading     bool
	autoFrom   engine.Transport // track an automatic crossfade already left
	cancelFade context.CancelFunc

	sleepStep     int // index into sleepDurations, -1 when off
	sleepDeadline time.Time
	sleepFading   bool
	cancelSleep   context.CancelFunc
	now           func() time.Time

	band     int
	eqPreset int // index into effects.EQPresetNames, -1 once bands are edited
	fxPreset int

	width, height    int
	vizCols, vizRows int
	vizView          string

	status     string
	statusErr  bool
	statusTime time.Time

	dirty    bool
	saving   bool
	lastSave time.Time

	quitting bool
}

// New creates a Model. The primary transport must already be attached to
// the engine and playing.
func New(cfg Config) Model {
	m := Model{
		eng:       cfg.Engine,
		viz:       cfg.Visualizer,
		surface:   cfg.Surface,
		img:       cfg.Image,
		store:     cfg.Store,
		base:      cfg.Settings,
		queue:     cfg.Queue,
		open:      cfg.Open,
		log:       logging.OrDiscard(cfg.Log),
		keys:      defaultKeys(),
		help:      help.New(),
		volume:    cfg.Settings.Volume,
		crossfade: time.Duration(cfg.Settings.Crossfade * float64(time.Second)),
		eqPreset:  -1,
		sleepStep: -1,
		now:       time.Now,
		meters:    newSpringField(effects.NumBands+1, int(time.Second/frameInterval), 6, 0.7),
	}
	primary, _, accent := visualizer.DefaultPrimary, visualizer.DefaultSecondary, visualizer.DefaultAccent
	if m.viz != nil {
		primary, _, accent = m.viz.Theme().Hex()
	}
	m.bar = progress.New(progress.WithGradient(primary, accent), progress.WithoutPercentage())
	m.fadeBar = progress.New(progress.WithSolidFill(accent), progress.WithoutPercentage())

	if t := m.eng.Primary(); t != nil {
		m.volume = t.Volume()
		m.duration = t.Duration()
	}
	if tr := m.queue.Current(); tr != nil {
		m.meta = player.Metadata{Title: tr.Title}
	}
	gains := m.eng.EQBands()
	for i, g := range gains {
		m.meters.snap(i, g)
	}
	m.meters.snap(effects.NumBands, m.volume)
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(), tea.SetWindowTitle(windowTitle(m.meta.Title, false))}
	if t := m.eng.Primary(); t != nil {
		cmds = append(cmds, checkDone(t))
	}
	if tr := m.queue.Current(); tr != nil {
		cmds = append(cmds, metadataCmd(tr.Path))
	}
	return tea.Batch(cmds...)
}

type metadataMsg struct {
	path string
	meta player.Metadata
}

func metadataCmd(path string) tea.Cmd {
	return func() tea.Msg {
		return metadataMsg{path: path, meta: player.ReadMetadata(path)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		return m.handleTick()

	case playbackEndedMsg:
		return m.handleEnded(msg)

	case crossfadeDoneMsg:
		return m.handleCrossfadeDone(msg)

	case sleepFadeDoneMsg:
		return m.handleSleepDone(msg)

	case metadataMsg:
		if tr := m.queue.Current(); tr != nil && tr.Path == msg.path {
			m.meta = msg.meta
			return m, tea.SetWindowTitle(windowTitle(m.meta.Title, m.paused))
		}
		return m, nil

	case settingsSavedMsg:
		m.saving = false
		if msg.err != nil {
			m.setError(fmt.Errorf("saving settings: %w", msg.err))
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layoutViz()
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	t := m.eng.Primary()
	fx := m.eng.Effects()

	switch {
	case key.Matches(msg, k.Quit):
		return m.quit()

	case key.Matches(msg, k.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layoutViz()

	case key.Matches(msg, k.Pause):
		if t == nil {
			return m, nil
		}
		if m.paused {
			if err := t.Play(); err != nil {
				m.setError(err)
				return m, nil
			}
		} else {
			t.Pause()
		}
		m.paused = !m.paused
		return m, tea.SetWindowTitle(windowTitle(m.meta.Title, m.paused))

	case key.Matches(msg, k.SeekBack):
		m.seek(t, -seekStep)
	case key.Matches(msg, k.SeekFwd):
		m.seek(t, seekStep)

	case key.Matches(msg, k.VolUp):
		m.adjustVolume(t, volumeStep)
	case key.Matches(msg, k.VolDown):
		m.adjustVolume(t, -volumeStep)

	case key.Matches(msg, k.Slower):
		m.eng.SetPlaybackRate(fx.PlaybackRate - rateStep)
		m.setStatus(fmt.Sprintf("speed %.2fx", m.eng.Effects().PlaybackRate))
		m.dirty = true
	case key.Matches(msg, k.Faster):
		m.eng.SetPlaybackRate(fx.PlaybackRate + rateStep)
		m.setStatus(fmt.Sprintf("speed %.2fx", m.eng.Effects().PlaybackRate))
		m.dirty = true

	case key.Matches(msg, k.NextTrack):
		return m.skip(true)
	case key.Matches(msg, k.PrevTrack):
		if t != nil && t.Position() > restartThreshold {
			m.seekTo(t, 0)
			return m, nil
		}
		return m.skip(false)

	case key.Matches(msg, k.BandNext):
		m.band = (m.band + 1) % effects.NumBands
	case key.Matches(msg, k.BandPrev):
		m.band = (m.band + effects.NumBands - 1) % effects.NumBands
	case key.Matches(msg, k.GainUp):
		m.adjustBand(gainStep)
	case key.Matches(msg, k.GainDown):
		m.adjustBand(-gainStep)

	case key.Matches(msg, k.EQPreset):
		names := effects.EQPresetNames()
		m.eqPreset = (m.eqPreset + 1) % len(names)
		m.eng.ApplyEQPreset(names[m.eqPreset])
		m.setStatus("eq: " + names[m.eqPreset])
		m.dirty = true

	case key.Matches(msg, k.FXPreset):
		names := effects.EffectPresetNames()
		m.fxPreset = (m.fxPreset + 1) % len(names)
		m.eng.ApplyEffectPreset(names[m.fxPreset])
		m.setStatus("effects: " + names[m.fxPreset])
		m.dirty = true

	case key.Matches(msg, k.Reverb):
		r := fx.Reverb
		if err := m.eng.SetReverb(!r.Enabled, r.Mix, r.Decay); err != nil {
			m.setError(err)
		}
		m.dirty = true
	case key.Matches(msg, k.Delay):
		d := fx.Delay
		m.eng.SetDelay(!d.Enabled, d.Time, d.Feedback, d.Mix)
		m.dirty = true
	case key.Matches(msg, k.Compressor):
		c := fx.Compressor
		c.Enabled = !c.Enabled
		m.eng.SetCompressor(c)
		m.dirty = true
	case key.Matches(msg, k.Stereo):
		s := fx.Stereo
		width := s.Width
		if !s.Enabled && width <= 1 {
			width = effects.DefaultWideWidth
		}
		m.eng.SetStereo(!s.Enabled, s.Pan, width)
		m.dirty = true

	case key.Matches(msg, k.ABRepeat):
		m.cycleAB(t)

	case key.Matches(msg, k.SleepTimer):
		m.cycleSleep()

	case key.Matches(msg, k.VizStyle):
		if m.viz != nil {
			s := m.viz.Style().Next()
			m.viz.SetStyle(s)
			m.setStatus("visualizer: " + s.String())
			m.dirty = true
		}
	case key.Matches(msg, k.VizQuality):
		if m.viz != nil {
			q := m.viz.Quality().Next()
			if err := m.viz.SetQuality(q); err != nil {
				m.setError(err)
			} else {
				m.setStatus("visualizer quality: " + q.String())
			}
			m.dirty = true
		}

	case key.Matches(msg, k.Repeat):
		m.repeat = m.repeat.Next()
		m.setStatus("repeat " + m.repeat.String())
	case key.Matches(msg, k.Shuffle):
		if m.queue.Shuffled() {
			m.queue.DisableShuffle()
			m.setStatus("shuffle off")
		} else {
			m.queue.EnableShuffle()
			m.setStatus("shuffle on")
		}
	}
	return m, nil
}

func (m *Model) seek(t engine.Transport, delta time.Duration) {
	if t == nil {
		return
	}
	m.seekTo(t, t.Position()+delta)
}

func (m *Model) seekTo(t engine.Transport, pos time.Duration) {
	if err := t.SeekTo(max(pos, 0)); err != nil {
		m.setError(err)
		return
	}
	m.elapsed = t.Position()
}

func (m *Model) adjustVolume(t engine.Transport, delta float64) {
	if t == nil || m.fading {
		return
	}
	t.SetVolume(t.Volume() + delta)
	m.volume = t.Volume()
	m.dirty = true
}

func (m *Model) adjustBand(delta float64) {
	gains := m.eng.EQBands()
	m.eng.SetEQBand(m.band, gains[m.band]+delta)
	m.eqPreset = -1
	m.dirty = true
}

func (m *Model) cycleAB(t engine.Transport) {
	if t == nil {
		return
	}
	pos := t.Position()
	before := m.eng.ABRepeat().Stage
	switch m.eng.CycleABRepeat(pos) {
	case engine.ABSet:
		if before == engine.ABSet {
			m.setStatus("B must come after A")
			return
		}
		m.setStatus("A set at " + util.FormatDuration(pos))
	case engine.ABActive:
		r := m.eng.ABRepeat()
		m.setStatus(fmt.Sprintf("looping %s → %s", util.FormatDuration(r.A), util.FormatDuration(r.B)))
	default:
		m.setStatus("A/B repeat off")
	}
}

// skip moves through the queue and crossfades into the new track. With
// repeat all, moving past the end wraps to the first track.
func (m Model) skip(forward bool) (tea.Model, tea.Cmd) {
	if m.fading {
		m.setStatus("crossfade in progress")
		return m, nil
	}
	prev := m.queue.CurrentIndex()
	moved := false
	if forward {
		moved = m.queue.Advance()
		if !moved && m.repeat == RepeatAll && m.queue.Len() > 0 {
			m.queue.WrapToStart()
			moved = m.queue.Advance()
		}
	} else {
		moved = m.queue.Previous()
	}
	if !moved {
		m.queue.SetCurrentIndex(prev)
		m.setStatus("no more tracks")
		return m, nil
	}
	return m.startCrossfade(prev)
}

func (m Model) startCrossfade(prev int) (tea.Model, tea.Cmd) {
	tr := m.queue.Current()
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelFade = cancel
	m.fading = true
	m.setStatus("→ " + tr.Title)
	return m, crossfadeCmd(ctx, m.eng, m.open, tr.Path, m.crossfade, m.queue.CurrentIndex(), prev)
}

// crossfadeCmd opens path and fades it in over d. It blocks for the length
// of the fade, so it runs as a command.
func crossfadeCmd(ctx context.Context, eng *engine.Engine, open Opener, path string, d time.Duration, index, previous int) tea.Cmd {
	return func() tea.Msg {
		next, err := open(path)
		if err != nil {
			return crossfadeDoneMsg{index: index, previous: previous, err: fmt.Errorf("opening %s: %w", path, err)}
		}
		err = eng.CrossfadeTo(ctx, next, d)
		return crossfadeDoneMsg{to: next, index: index, previous: previous, err: err}
	}
}

func (m Model) handleCrossfadeDone(msg crossfadeDoneMsg) (tea.Model, tea.Cmd) {
	m.fading = false
	if m.cancelFade != nil {
		m.cancelFade()
		m.cancelFade = nil
	}
	if msg.err != nil {
		if m.queue.CurrentIndex() == msg.index {
			m.queue.SetCurrentIndex(msg.previous)
		}
		if errors.Is(msg.err, engine.ErrCrossfadeInProgress) {
			m.setStatus("crossfade in progress")
			return m, nil
		}
		m.setError(msg.err)
		m.log.WithError(msg.err).Warn("track change failed")
		return m, nil
	}

	m.paused = false
	m.elapsed = 0
	m.duration = msg.to.Duration()
	m.volume = msg.to.Volume()
	if tr := m.queue.Current(); tr != nil {
		m.meta = player.Metadata{Title: tr.Title}
		return m, tea.Batch(checkDone(msg.to), metadataCmd(tr.Path))
	}
	return m, checkDone(msg.to)
}

func (m Model) handleEnded(msg playbackEndedMsg) (tea.Model, tea.Cmd) {
	t := m.eng.Primary()
	if t == nil || msg.t != t || m.quitting {
		return m, nil
	}
	if m.repeat == RepeatOne {
		m.seekTo(t, 0)
		return m, checkDone(t)
	}
	if m.fading {
		// the running fade takes over from here
		return m, nil
	}
	next, cmd := m.skip(true)
	if nm := next.(Model); !nm.fading {
		nm.elapsed = nm.duration
		return nm.quit()
	}
	return next, cmd
}

func (m Model) handleTick() (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, nil
	}
	t := m.eng.Primary()
	m.fading = m.fading || m.eng.Crossfading()
	if t != nil {
		m.elapsed = t.Position()
		m.duration = t.Duration()
		if !m.fading {
			m.volume = t.Volume()
		}
	}

	gains := m.eng.EQBands()
	for i, g := range gains {
		m.meters.step(i, g)
	}
	m.meters.step(effects.NumBands, m.volume)

	if m.status != "" && time.Since(m.statusTime) > statusTTL {
		m.status = ""
		m.statusErr = false
	}
	m.renderViz()

	cmds := []tea.Cmd{tickCmd()}
	if m.dirty && !m.saving && time.Since(m.lastSave) >= saveInterval {
		m.dirty = false
		m.saving = true
		m.lastSave = time.Now()
		cmds = append(cmds, saveCmd(m.store, m.snapshot()))
	}
	if cmd := m.checkSleep(); cmd != nil {
		cmds = append(cmds, cmd)
	}

	if m.shouldAutoCrossfade(t) {
		m.autoFrom = t
		next, cmd := m.skip(true)
		return next, tea.Batch(append(cmds, cmd)...)
	}
	return m, tea.Batch(cmds...)
}

// shouldAutoCrossfade reports whether t is close enough to its end that
// the next track should start fading in.
func (m Model) shouldAutoCrossfade(t engine.Transport) bool {
	if t == nil || m.fading || m.paused || m.crossfade <= 0 || m.autoFrom == t {
		return false
	}
	if m.repeat == RepeatOne || m.eng.ABRepeat().Stage == engine.ABActive {
		return false
	}
	if m.duration <= 2*m.crossfade || m.duration-m.elapsed > m.crossfade {
		return false
	}
	return m.queue.Next() != nil || (m.repeat == RepeatAll && m.queue.Len() > 1)
}

func (m *Model) renderViz() {
	if m.surface == nil || m.img == nil || m.vizRows == 0 {
		m.vizView = ""
		return
	}
	snap := m.surface.Snapshot()
	if snap == nil {
		return
	}
	m.vizView = m.img.Render(snap, m.vizCols, m.vizRows)
}

// layoutViz gives the visualizer whatever rows the chrome leaves over.
func (m *Model) layoutViz() {
	reserved := chromeLines
	if m.help.ShowAll {
		reserved += fullHelpLines
	}
	m.vizCols = max(m.width-6, 0)
	m.vizRows = max(m.height-reserved, 0)
	if m.vizRows < minVizRows || m.vizCols == 0 {
		m.vizRows, m.vizCols = 0, 0
	}
	m.help.Width = m.width - 4
	barWidth := max(m.width-20, 10)
	m.bar.Width = barWidth
	m.fadeBar.Width = barWidth

	if m.surface != nil && m.vizRows > 0 {
		m.surface.SetLayout(visualizer.Layout{
			Width:      float64(m.vizCols * cellUnitsX),
			Height:     float64(m.vizRows * cellUnitsY),
			PixelRatio: vizPixelRatio,
		})
	}
}

// snapshot collects everything that is persisted.
func (m Model) snapshot() settings.Settings {
	s := m.base
	s.Effects = m.eng.Effects()
	s.Volume = m.volume
	if m.viz != nil {
		s.Visualizer.Style = m.viz.Style().String()
		s.Visualizer.Quality = m.viz.Quality().String()
		s.Visualizer.Primary, s.Visualizer.Secondary, s.Visualizer.Accent = m.viz.Theme().Hex()
	}
	return s
}

func saveCmd(store *settings.Store, s settings.Settings) tea.Cmd {
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		return settingsSavedMsg{err: store.Save(s)}
	}
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	if m.cancelFade != nil {
		m.cancelFade()
	}
	if m.cancelSleep != nil {
		m.cancelSleep()
	}
	if m.store != nil {
		if err := m.store.Save(m.snapshot()); err != nil {
			m.log.WithError(err).Warn("saving settings on exit")
		}
	}
	return m, tea.Sequence(tea.SetWindowTitle(""), tea.Quit)
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
	m.statusTime = time.Now()
}

func (m *Model) setError(err error) {
	m.status = err.Error()
	m.statusErr = true
	m.statusTime = time.Now()
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	line := func(s string) {
		b.WriteString("  ")
		b.WriteString(s)
		b.WriteByte('\n')
	}

	header := headerStyle.Render("harmonia")
	if n := m.queue.Len(); n > 1 {
		header += helpStyle.Render(fmt.Sprintf("  %d/%d", m.queue.CurrentIndex()+1, n))
	}
	b.WriteByte('\n')
	line(header)
	b.WriteByte('\n')
	line(titleStyle.Render(m.meta.Title))
	line(artistStyle.Render(subtitle(m.meta)))
	b.WriteByte('\n')

	if m.vizView != "" {
		b.WriteString(indent(vizBorderStyle.Render(m.vizView), "  "))
		b.WriteByte('\n')
	}

	progressLine := fmt.Sprintf("%s %s %s",
		timeStyle.Render(util.FormatDuration(m.elapsed)),
		m.bar.ViewAs(ratio(m.elapsed, m.duration)),
		timeStyle.Render(util.FormatDuration(m.duration)))
	if ab := renderAB(m.eng.ABRepeat()); ab != "" {
		progressLine += "  " + ab
	}
	line(progressLine)

	if elapsed, total, ok := m.eng.CrossfadeProgress(); ok && total > 0 {
		line(helpStyle.Render("fade ") + m.fadeBar.ViewAs(float64(elapsed)/float64(total)))
	} else {
		line(m.statusLine())
	}
	b.WriteByte('\n')

	gains := make([]float64, effects.NumBands)
	for i := range gains {
		gains[i] = m.meters.value(i)
	}
	line(renderEQ(gains, m.band))
	line(renderEffects(m.eng.Effects()))
	b.WriteByte('\n')

	switch {
	case m.status == "":
		b.WriteByte('\n')
	case m.statusErr:
		line(errorStyle.Render(m.status))
	default:
		line(helpStyle.Render(m.status))
	}
	line(m.help.View(m.keys))
	return b.String()
}

func (m Model) statusLine() string {
	icon, text := "▶", "playing"
	if m.paused {
		icon, text = "❚❚", "paused"
	}
	left := fmt.Sprintf("%s  %s", icon, text)
	if r := m.repeat.Icon(); r != "" {
		left += "  " + r
	}
	if m.queue.Shuffled() {
		left += "  [shuffle]"
	}
	if rem, ok := m.sleepRemaining(); ok {
		left += "  " + renderSleep(rem)
	}
	if m.viz != nil {
		left += "  " + m.viz.Style().String()
		if err := m.viz.Err(); err != nil {
			left += " " + errorStyle.Render("(stopped)")
		}
	}
	vol := renderVolumePercent(m.meters.value(effects.NumBands))
	gap := max(m.width-len([]rune(left))-len(vol)-6, 2)
	return statusStyle.Render(left) + strings.Repeat(" ", gap) + statusStyle.Render(vol)
}

func subtitle(meta player.Metadata) string {
	switch {
	case meta.Artist != "" && meta.Album != "":
		return meta.Artist + " - " + meta.Album
	case meta.Artist != "":
		return meta.Artist
	default:
		return meta.Album
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func windowTitle(title string, paused bool) string {
	if paused {
		return "⏸ " + title + " - harmonia"
	}
	return "▶ " + title + " - harmonia"
}
