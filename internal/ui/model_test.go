package ui

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/olivier-w/harmonia/internal/engine"
	"github.com/olivier-w/harmonia/internal/queue"
	"github.com/olivier-w/harmonia/internal/settings"
	"github.com/olivier-w/harmonia/internal/visualizer"
)

type stubTransport struct {
	mu      sync.Mutex
	pos     time.Duration
	dur     time.Duration
	vol     float64
	rate    float64
	playing bool
	closed  bool
	done    chan struct{}
}

func newStub(dur time.Duration) *stubTransport {
	return &stubTransport{dur: dur, vol: 0.8, rate: 1, playing: true, done: make(chan struct{})}
}

func (s *stubTransport) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func (s *stubTransport) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *stubTransport) Duration() time.Duration { return s.dur }

func (s *stubTransport) SeekTo(pos time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = min(max(pos, 0), s.dur)
	return nil
}

func (s *stubTransport) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vol
}

func (s *stubTransport) SetVolume(v float64) {
	s.mu.Lock()
	s.vol = min(max(v, 0), 1)
	s.mu.Unlock()
}

func (s *stubTransport) SetPlaybackRate(r float64) {
	s.mu.Lock()
	s.rate = r
	s.mu.Unlock()
}

func (s *stubTransport) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("closed")
	}
	s.playing = true
	return nil
}

func (s *stubTransport) Pause() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
}

func (s *stubTransport) Subscribe(func(time.Duration)) func() { return func() {} }

func (s *stubTransport) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *stubTransport) Done() <-chan struct{} { return s.done }

func (s *stubTransport) isPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *stubTransport) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func testTracks(n int) []queue.Track {
	out := make([]queue.Track, n)
	for i := range out {
		name := string(rune('a' + i))
		out[i] = queue.Track{Path: "/music/" + name + ".mp3", Title: name}
	}
	return out
}

type fixture struct {
	eng     *engine.Engine
	first   *stubTransport
	opened  []*stubTransport
	openErr error
	q       *queue.Queue
}

func (f *fixture) open(string) (engine.Transport, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	t := newStub(time.Minute)
	t.playing = false
	f.opened = append(f.opened, t)
	return t, nil
}

func newFixture(t *testing.T, tracks int, prefs settings.Settings, store *settings.Store) (*fixture, Model) {
	t.Helper()
	f := &fixture{eng: engine.New(), first: newStub(time.Minute), q: queue.New(testTracks(tracks))}
	f.eng.Attach(f.first)
	m := New(Config{
		Engine:   f.eng,
		Store:    store,
		Settings: prefs,
		Queue:    f.q,
		Open:     f.open,
	})
	return f, m
}

func noFade() settings.Settings {
	s := settings.Default()
	s.Crossfade = 0
	return s
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(keyMsg(k))
		m = next.(Model)
	}
	return m, cmd
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestPauseTogglesTransport(t *testing.T) {
	f, m := newFixture(t, 1, noFade(), nil)

	m, _ = press(t, m, " ")
	if !m.paused || f.first.isPlaying() {
		t.Fatal("expected paused after space")
	}
	m, _ = press(t, m, " ")
	if m.paused || !f.first.isPlaying() {
		t.Fatal("expected playing after second space")
	}
}

func TestSeekAndVolumeKeys(t *testing.T) {
	f, m := newFixture(t, 1, noFade(), nil)

	m, _ = press(t, m, "right", "right", "up")
	if got := f.first.Position(); got != 10*time.Second {
		t.Fatalf("expected position 10s, got %v", got)
	}
	if got := f.first.Volume(); got < 0.849 || got > 0.851 {
		t.Fatalf("expected volume 0.85, got %v", got)
	}
	if !m.dirty {
		t.Fatal("expected volume change to mark settings dirty")
	}
}

func TestEQKeysAdjustSelectedBand(t *testing.T) {
	f, m := newFixture(t, 1, noFade(), nil)

	m, _ = press(t, m, "tab", "+", "+", "+")
	if got := f.eng.EQBands()[1]; got != 3 {
		t.Fatalf("expected band 1 at +3 dB, got %v", got)
	}
	if m.band != 1 || m.eqPreset != -1 {
		t.Fatalf("unexpected band %d preset %d", m.band, m.eqPreset)
	}

	m, _ = press(t, m, "e", "e")
	if m.eqPreset != 1 {
		t.Fatalf("expected second preset, got %d", m.eqPreset)
	}
	if got := f.eng.EQBands()[0]; got != 5 {
		t.Fatalf("expected rock low band at 5 dB, got %v", got)
	}
}

func TestEffectToggles(t *testing.T) {
	f, m := newFixture(t, 1, noFade(), nil)

	press(t, m, "R", "D", "C", "S")
	fx := f.eng.Effects()
	if !fx.Reverb.Enabled || !fx.Delay.Enabled || !fx.Compressor.Enabled || !fx.Stereo.Enabled {
		t.Fatalf("expected every effect on, got %+v", fx)
	}
	if fx.Stereo.Width != 1.5 {
		t.Fatalf("expected widening from neutral width, got %v", fx.Stereo.Width)
	}
}

func TestPlaybackRateKeysClamp(t *testing.T) {
	f, m := newFixture(t, 1, noFade(), nil)

	for range 20 {
		m, _ = press(t, m, "]")
	}
	if got := f.eng.Effects().PlaybackRate; got != 2 {
		t.Fatalf("expected rate clamped to 2, got %v", got)
	}
}

func TestABRepeatCycle(t *testing.T) {
	f, m := newFixture(t, 1, noFade(), nil)

	f.first.SeekTo(10 * time.Second)
	m, _ = press(t, m, "a")
	if r := f.eng.ABRepeat(); r.Stage != engine.ABSet || r.A != 10*time.Second {
		t.Fatalf("expected A set at 10s, got %+v", r)
	}

	m, _ = press(t, m, "a")
	if f.eng.ABRepeat().Stage != engine.ABSet || m.status != "B must come after A" {
		t.Fatalf("expected B at A rejected, got %+v %q", f.eng.ABRepeat(), m.status)
	}

	f.first.SeekTo(20 * time.Second)
	m, _ = press(t, m, "a")
	if r := f.eng.ABRepeat(); r.Stage != engine.ABActive || r.B != 20*time.Second {
		t.Fatalf("expected active loop to 20s, got %+v", r)
	}

	press(t, m, "a")
	if f.eng.ABRepeat().Stage != engine.ABNone {
		t.Fatal("expected A/B repeat cleared")
	}
}

func TestNextTrackCrossfades(t *testing.T) {
	f, m := newFixture(t, 2, noFade(), nil)

	m, cmd := press(t, m, "n")
	if cmd == nil || !m.fading {
		t.Fatal("expected a crossfade command")
	}
	if f.q.CurrentIndex() != 1 {
		t.Fatalf("expected queue on track 1, got %d", f.q.CurrentIndex())
	}

	m, _ = update(t, m, cmd())
	if m.fading {
		t.Fatal("expected fade finished")
	}
	if len(f.opened) != 1 || f.eng.Primary() != f.opened[0] {
		t.Fatal("expected the opened track to become primary")
	}
	if !f.first.isClosed() {
		t.Fatal("expected the old track closed")
	}
	if m.meta.Title != "b" {
		t.Fatalf("expected title b, got %q", m.meta.Title)
	}
}

func TestNextTrackOpenFailureRestoresQueue(t *testing.T) {
	f, m := newFixture(t, 2, noFade(), nil)
	f.openErr = errors.New("bad file")

	m, cmd := press(t, m, "n")
	m, _ = update(t, m, cmd())
	if f.q.CurrentIndex() != 0 {
		t.Fatalf("expected queue restored to 0, got %d", f.q.CurrentIndex())
	}
	if !m.statusErr || !strings.Contains(m.status, "bad file") {
		t.Fatalf("expected error status, got %q", m.status)
	}
	if f.eng.Primary() != f.first {
		t.Fatal("expected the original track to keep playing")
	}
}

func TestNextAtEndWithoutRepeat(t *testing.T) {
	_, m := newFixture(t, 1, noFade(), nil)

	m, cmd := press(t, m, "n")
	if cmd != nil || m.fading || m.status != "no more tracks" {
		t.Fatalf("expected nothing to skip to, got %q", m.status)
	}
}

func TestPreviousRestartsTrackPastThreshold(t *testing.T) {
	f, m := newFixture(t, 2, noFade(), nil)
	f.q.SetCurrentIndex(1)
	f.first.SeekTo(30 * time.Second)

	m, cmd := press(t, m, "p")
	if cmd != nil || f.first.Position() != 0 || f.q.CurrentIndex() != 1 {
		t.Fatalf("expected restart in place, pos %v index %d", f.first.Position(), f.q.CurrentIndex())
	}
	_ = m
}

func TestEndOfLastTrackQuits(t *testing.T) {
	f, m := newFixture(t, 1, noFade(), nil)

	m, cmd := update(t, m, playbackEndedMsg{t: f.first})
	if !m.quitting || cmd == nil {
		t.Fatal("expected quit at end of the last track")
	}
}

func TestRepeatOneRestartsTrack(t *testing.T) {
	f, m := newFixture(t, 2, noFade(), nil)
	m, _ = press(t, m, "r", "r")
	if m.repeat != RepeatOne {
		t.Fatalf("expected repeat one, got %v", m.repeat)
	}
	f.first.SeekTo(time.Minute)

	m, _ = update(t, m, playbackEndedMsg{t: f.first})
	if m.quitting || f.first.Position() != 0 || f.q.CurrentIndex() != 0 {
		t.Fatal("expected the same track restarted")
	}
}

func TestRepeatAllWrapsToFirstTrack(t *testing.T) {
	f, m := newFixture(t, 2, noFade(), nil)
	f.q.SetCurrentIndex(1)
	m, _ = press(t, m, "r")

	m, cmd := update(t, m, playbackEndedMsg{t: f.first})
	if cmd == nil || !m.fading || f.q.CurrentIndex() != 0 {
		t.Fatalf("expected wrap to track 0, got %d", f.q.CurrentIndex())
	}
}

func TestStaleEndedMessageIgnored(t *testing.T) {
	_, m := newFixture(t, 1, noFade(), nil)

	m, cmd := update(t, m, playbackEndedMsg{t: newStub(time.Second)})
	if m.quitting || cmd != nil {
		t.Fatal("expected message for an old transport to be ignored")
	}
}

func TestAutoCrossfadeNearEnd(t *testing.T) {
	prefs := settings.Default()
	prefs.Crossfade = 3
	f, m := newFixture(t, 2, prefs, nil)
	f.first.SeekTo(58 * time.Second)

	m, cmd := update(t, m, tickMsg(time.Now()))
	if cmd == nil || !m.fading || m.autoFrom != engine.Transport(f.first) {
		t.Fatal("expected an automatic crossfade")
	}
	if f.q.CurrentIndex() != 1 {
		t.Fatalf("expected queue advanced, got %d", f.q.CurrentIndex())
	}
}

func TestNoAutoCrossfadeWhileLooping(t *testing.T) {
	prefs := settings.Default()
	prefs.Crossfade = 3
	f, m := newFixture(t, 2, prefs, nil)
	f.eng.MarkA(50 * time.Second)
	f.eng.SetABRepeat(50*time.Second, 59*time.Second)
	f.first.SeekTo(58 * time.Second)

	m, _ = update(t, m, tickMsg(time.Now()))
	if m.fading || f.q.CurrentIndex() != 0 {
		t.Fatal("expected the loop to hold the track")
	}
}

func TestWindowSizeSetsSurfaceLayout(t *testing.T) {
	f := &fixture{eng: engine.New(), first: newStub(time.Minute), q: queue.New(testTracks(1))}
	f.eng.Attach(f.first)
	surface := visualizer.NewRasterSurface(visualizer.Layout{})
	m := New(Config{Engine: f.eng, Surface: surface, Settings: noFade(), Queue: f.q, Open: f.open})

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	want := visualizer.Layout{Width: 94 * cellUnitsX, Height: 22 * cellUnitsY, PixelRatio: vizPixelRatio}
	if got := surface.Layout(); got != want {
		t.Fatalf("expected layout %+v, got %+v", want, got)
	}

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 12})
	if m.vizRows != 0 {
		t.Fatalf("expected no room for the visualizer, got %d rows", m.vizRows)
	}
}

func TestQuitSavesSettings(t *testing.T) {
	store, err := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	f, m := newFixture(t, 1, noFade(), store)

	m, _ = press(t, m, "+", "R", "q")
	if !m.quitting {
		t.Fatal("expected quitting")
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Effects.EQ[0] != 1 || !got.Effects.Reverb.Enabled {
		t.Fatalf("expected saved effects, got %+v", got.Effects)
	}
	if got.Effects != f.eng.Effects() {
		t.Fatal("expected saved effects to match the engine")
	}
}

func TestViewShowsTrackAndEffects(t *testing.T) {
	_, m := newFixture(t, 2, noFade(), nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	out := m.View()
	for _, want := range []string{"harmonia", "1/2", "reverb", "1k", "playing"} {
		if !strings.Contains(out, want) {
			t.Fatalf("view missing %q:\n%s", want, out)
		}
	}
}

func TestMeterRune(t *testing.T) {
	cases := map[float64]rune{-12: '▁', 0: '▅', 12: '█', 40: '█'}
	for gain, want := range cases {
		if got := meterRune(gain); got != want {
			t.Fatalf("meterRune(%v) = %q, want %q", gain, got, want)
		}
	}
}

func TestRepeatModeCycle(t *testing.T) {
	r := RepeatOff
	for _, want := range []RepeatMode{RepeatAll, RepeatOne, RepeatOff} {
		r = r.Next()
		if r != want {
			t.Fatalf("expected %v, got %v", want, r)
		}
	}
}
