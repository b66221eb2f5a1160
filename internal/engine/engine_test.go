package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/olivier-w/harmonia/internal/dsp"
	"github.com/olivier-w/harmonia/internal/effects"
)

type stubDevice struct {
	mu      sync.Mutex
	reader  io.Reader
	started bool
	closed  bool
}

func (d *stubDevice) SampleRate() int { return SampleRate }

func (d *stubDevice) Start(r io.Reader) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reader = r
	d.started = true
	return nil
}

func (d *stubDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

type stubTransport struct {
	mu       sync.Mutex
	pos      time.Duration
	duration time.Duration
	volume   float64
	rate     float64
	playing  bool
	closed   bool
	playErr  error
	seeks    []time.Duration
	subs     map[int]func(time.Duration)
	nextSub  int
	pcm      []byte
}

func newStubTransport(volume float64) *stubTransport {
	return &stubTransport{volume: volume, rate: 1, subs: make(map[int]func(time.Duration))}
}

func (s *stubTransport) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(p, s.pcm)
	s.pcm = s.pcm[n:]
	clear(p[n:])
	return len(p), nil
}

func (s *stubTransport) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *stubTransport) Duration() time.Duration { return s.duration }

func (s *stubTransport) SeekTo(pos time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = pos
	s.seeks = append(s.seeks, pos)
	return nil
}

func (s *stubTransport) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *stubTransport) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

func (s *stubTransport) SetPlaybackRate(r float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = r
}

func (s *stubTransport) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playErr != nil {
		return s.playErr
	}
	s.playing = true
	return nil
}

func (s *stubTransport) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
}

func (s *stubTransport) Subscribe(fn func(time.Duration)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *stubTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// emit delivers a position update to every subscriber.
func (s *stubTransport) emit(pos time.Duration) {
	s.mu.Lock()
	s.pos = pos
	fns := make([]func(time.Duration), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(pos)
	}
}

func (s *stubTransport) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func newTestEngine(t *testing.T) (*Engine, *int) {
	t.Helper()
	builds := 0
	e := New(
		WithSeed(1, 2),
		WithDeviceFactory(func() (Device, error) {
			builds++
			return &stubDevice{}, nil
		}),
	)
	return e, &builds
}

func mustAnalyser(t *testing.T) *dsp.Analyser {
	t.Helper()
	a, err := dsp.NewAnalyser(DefaultFFTSize, DefaultSmoothing)
	if err != nil {
		t.Fatalf("NewAnalyser: %v", err)
	}
	return a
}

func mustBuild(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.EnsureBuilt(); err != nil {
		t.Fatalf("EnsureBuilt: %v", err)
	}
}

func TestSetEQBandClampsAndIgnoresBadIndex(t *testing.T) {
	e, _ := newTestEngine(t)

	e.SetEQBand(3, 30)
	e.SetEQBand(4, -30)
	e.SetEQBand(-1, 5)
	e.SetEQBand(effects.NumBands, 5)

	bands := e.EQBands()
	if bands[3] != 12 {
		t.Fatalf("expected band 3 clamped to 12, got %v", bands[3])
	}
	if bands[4] != -12 {
		t.Fatalf("expected band 4 clamped to -12, got %v", bands[4])
	}
	for i, g := range bands {
		if i != 3 && i != 4 && g != 0 {
			t.Fatalf("expected band %d untouched, got %v", i, g)
		}
	}
}

func TestEQChangesReachLiveParams(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetEQBand(0, 6)
	mustBuild(t, e)

	if got := e.g.params.bands[0].Get(); got != 6 {
		t.Fatalf("expected buffered band gain 6 applied at build, got %v", got)
	}
	e.SetEQBand(9, -3)
	if got := e.g.params.bands[9].Get(); got != -3 {
		t.Fatalf("expected live band gain -3, got %v", got)
	}
}

func TestApplyEQPreset(t *testing.T) {
	e, _ := newTestEngine(t)

	e.ApplyEQPreset("rock")
	want, _ := effects.EQPreset("rock")
	if got := e.EQBands(); got != want {
		t.Fatalf("expected rock curve %v, got %v", want, got)
	}

	e.ApplyEQPreset("no-such-preset")
	if got := e.EQBands(); got != (effects.EQ{}) {
		t.Fatalf("expected unknown preset to load flat, got %v", got)
	}
}

func TestEnsureBuiltIsIdempotentAndRebuildsAfterClose(t *testing.T) {
	e, builds := newTestEngine(t)

	mustBuild(t, e)
	mustBuild(t, e)
	if *builds != 1 {
		t.Fatalf("expected one device open, got %d", *builds)
	}
	if e.State() != Built {
		t.Fatalf("expected built state, got %v", e.State())
	}
	first := e.g

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if e.State() != Closed {
		t.Fatalf("expected closed state, got %v", e.State())
	}

	mustBuild(t, e)
	if *builds != 2 {
		t.Fatalf("expected rebuild to open a new device, got %d opens", *builds)
	}
	if e.g == first {
		t.Fatal("expected a fresh graph after rebuild")
	}
}

func TestEnsureBuiltReportsUnsupportedCapability(t *testing.T) {
	e := New(WithDeviceFactory(func() (Device, error) {
		return nil, errors.New("no audio device")
	}))

	err := e.EnsureBuilt()
	if !errors.Is(err, ErrUnsupportedCapability) {
		t.Fatalf("expected ErrUnsupportedCapability, got %v", err)
	}
	if e.State() != Unbuilt {
		t.Fatalf("expected engine to stay unbuilt, got %v", e.State())
	}

	e.SetDeviceFactory(func() (Device, error) { return &stubDevice{}, nil })
	mustBuild(t, e)
}

func TestReadWithoutGraphIsSilence(t *testing.T) {
	e, _ := newTestEngine(t)
	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	n, err := e.Read(buf)
	if err != nil || n != len(buf) {
		t.Fatalf("expected full silent read, got n=%d err=%v", n, err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("expected zero byte at %d, got %d", i, b)
		}
	}
}

func TestReadSpansQuantumBoundaries(t *testing.T) {
	e, _ := newTestEngine(t)
	mustBuild(t, e)

	buf := make([]byte, quantumFrames*frameSize+3*frameSize)
	n, err := e.Read(buf)
	if err != nil || n != len(buf) {
		t.Fatalf("expected full read, got n=%d err=%v", n, err)
	}
	if len(e.pending) != quantumFrames*frameSize-3*frameSize {
		t.Fatalf("expected leftover of one partial quantum, got %d bytes", len(e.pending))
	}
}

func TestReverbImpulseRegeneratedOnlyOnDecayChange(t *testing.T) {
	e, _ := newTestEngine(t)
	mustBuild(t, e)

	if got := e.ImpulseGenerations(); got != 1 {
		t.Fatalf("expected impulse generated at build, got %d generations", got)
	}
	if got, want := e.ImpulseLength(), int(math.Round(SampleRate*effects.DefaultReverb.Decay)); got != want {
		t.Fatalf("expected impulse length %d, got %d", want, got)
	}

	if err := e.SetReverb(true, 0.5, effects.DefaultReverb.Decay); err != nil {
		t.Fatalf("SetReverb: %v", err)
	}
	if got := e.ImpulseGenerations(); got != 1 {
		t.Fatalf("expected same decay to keep the impulse, got %d generations", got)
	}
	if got := e.g.params.reverbMix.Get(); got != 0.5 {
		t.Fatalf("expected reverb mix 0.5, got %v", got)
	}

	if err := e.SetReverb(true, 0.5, 1.5); err != nil {
		t.Fatalf("SetReverb: %v", err)
	}
	if got := e.ImpulseGenerations(); got != 2 {
		t.Fatalf("expected new decay to regenerate, got %d generations", got)
	}
	if got := e.ImpulseLength(); got != 72000 {
		t.Fatalf("expected impulse length 72000, got %d", got)
	}
	if k := e.g.conv.Kernel(); k == nil || k.Length() != 72000 {
		t.Fatal("expected convolver to hold the new kernel")
	}
}

func TestReverbWithInvalidDecayStaysSilent(t *testing.T) {
	e, _ := newTestEngine(t)
	mustBuild(t, e)

	err := e.SetReverb(true, 0.8, -1)
	if !errors.Is(err, ErrImpulseGeneration) {
		t.Fatalf("expected ErrImpulseGeneration, got %v", err)
	}
	if got := e.g.params.reverbMix.Get(); got != 0 {
		t.Fatalf("expected reverb mix to stay 0, got %v", got)
	}

	if err := e.SetReverb(true, 0.8, 1); err != nil {
		t.Fatalf("expected recovery with a valid decay, got %v", err)
	}
	if got := e.g.params.reverbMix.Get(); got != 0.8 {
		t.Fatalf("expected reverb mix 0.8 after recovery, got %v", got)
	}
}

func TestReverbDisabledMutesMix(t *testing.T) {
	e, _ := newTestEngine(t)
	mustBuild(t, e)

	if err := e.SetReverb(false, 0.9, 2); err != nil {
		t.Fatalf("SetReverb: %v", err)
	}
	if got := e.g.params.reverbMix.Get(); got != 0 {
		t.Fatalf("expected disabled reverb to mute, got %v", got)
	}
}

func TestSetDelayClamps(t *testing.T) {
	e, _ := newTestEngine(t)
	mustBuild(t, e)

	e.SetDelay(true, 9, 2, 0.4)
	d := e.Effects().Delay
	if d.Time != effects.MaxDelayTime {
		t.Fatalf("expected delay time clamped to 5, got %v", d.Time)
	}
	if d.Feedback != effects.MaxFeedback {
		t.Fatalf("expected feedback clamped to %v, got %v", effects.MaxFeedback, d.Feedback)
	}
	if got := e.g.params.delayMix.Get(); got != 0.4 {
		t.Fatalf("expected delay mix 0.4, got %v", got)
	}

	e.SetDelay(false, 1, 0.5, 0.4)
	if got := e.g.params.delayMix.Get(); got != 0 {
		t.Fatalf("expected disabled delay to mute, got %v", got)
	}
}

func TestDisabledCompressorIsTransparent(t *testing.T) {
	e, _ := newTestEngine(t)
	mustBuild(t, e)

	c := effects.DefaultCompressor
	c.Enabled = true
	e.SetCompressor(c)
	if got := *e.g.params.compressor.Load(); got != c {
		t.Fatalf("expected enabled settings %+v, got %+v", c, got)
	}

	c.Enabled = false
	e.SetCompressor(c)
	if got := *e.g.params.compressor.Load(); got != effects.TransparentCompressor {
		t.Fatalf("expected transparent settings, got %+v", got)
	}
}

func TestSetStereoClampsAndDisables(t *testing.T) {
	e, _ := newTestEngine(t)
	mustBuild(t, e)

	e.SetStereo(true, -3, 9)
	if got := e.g.params.pan.Get(); got != -1 {
		t.Fatalf("expected pan clamped to -1, got %v", got)
	}
	if got := e.g.params.width.Get(); got != effects.MaxStereoWidth {
		t.Fatalf("expected width clamped to %v, got %v", effects.MaxStereoWidth, got)
	}

	e.SetStereo(false, 0.5, 2)
	if e.g.params.pan.Get() != 0 || e.g.params.width.Get() != 1 {
		t.Fatal("expected disabled stereo to reset pan and width")
	}
}

func TestApplyEffectPreset(t *testing.T) {
	e, _ := newTestEngine(t)
	before := e.Effects()

	if e.ApplyEffectPreset("nope") {
		t.Fatal("expected unknown effect preset to report false")
	}
	if e.Effects() != before {
		t.Fatal("expected unknown effect preset to change nothing")
	}

	if !e.ApplyEffectPreset("echo") {
		t.Fatal("expected echo preset to apply")
	}
	want, _ := effects.LookupEffectPreset("echo")
	if got := e.Effects().Delay; got != want.Delay.Clamped() {
		t.Fatalf("expected echo delay %+v, got %+v", want.Delay, got)
	}
}

func TestSetPlaybackRateClampsAndForwards(t *testing.T) {
	e, _ := newTestEngine(t)
	tr := newStubTransport(1)
	e.Attach(tr)

	e.SetPlaybackRate(5)
	if tr.rate != effects.MaxPlaybackRate {
		t.Fatalf("expected transport rate %v, got %v", effects.MaxPlaybackRate, tr.rate)
	}
	if got := e.Effects().PlaybackRate; got != effects.MaxPlaybackRate {
		t.Fatalf("expected stored rate %v, got %v", effects.MaxPlaybackRate, got)
	}

	e.SetPlaybackRate(0.1)
	if tr.rate != effects.MinPlaybackRate {
		t.Fatalf("expected transport rate %v, got %v", effects.MinPlaybackRate, tr.rate)
	}
}

func TestSetABRepeatFromNoneIsRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	if e.SetABRepeat(5*time.Second, 3*time.Second) {
		t.Fatal("expected SetABRepeat from none to be rejected")
	}
	if got := e.ABRepeat().Stage; got != ABNone {
		t.Fatalf("expected stage none, got %v", got)
	}
}

func TestABRepeatStateMachine(t *testing.T) {
	e, _ := newTestEngine(t)
	tr := newStubTransport(1)
	tr.duration = time.Minute
	e.Attach(tr)

	if !e.MarkA(2 * time.Second) {
		t.Fatal("expected MarkA to succeed from none")
	}
	if e.SetABRepeat(2*time.Second, time.Second) {
		t.Fatal("expected b <= a to be rejected")
	}
	if got := e.ABRepeat().Stage; got != ABSet {
		t.Fatalf("expected stage a-set after rejection, got %v", got)
	}
	if tr.subscribers() != 0 {
		t.Fatal("expected no watcher after rejection")
	}

	if !e.SetABRepeat(2*time.Second, 4*time.Second) {
		t.Fatal("expected SetABRepeat to activate")
	}
	if got := e.ABRepeat(); got.Stage != ABActive || got.A != 2*time.Second || got.B != 4*time.Second {
		t.Fatalf("unexpected region %+v", got)
	}

	tr.emit(3 * time.Second)
	if len(tr.seeks) != 0 {
		t.Fatalf("expected no seek before B, got %v", tr.seeks)
	}
	tr.emit(4 * time.Second)
	if len(tr.seeks) != 1 || tr.seeks[0] != 2*time.Second {
		t.Fatalf("expected seek to A at B, got %v", tr.seeks)
	}

	e.ClearABRepeat()
	if got := e.ABRepeat().Stage; got != ABNone {
		t.Fatalf("expected stage none after clear, got %v", got)
	}
	if tr.subscribers() != 0 {
		t.Fatal("expected watcher removed after clear")
	}
	tr.emit(5 * time.Second)
	if len(tr.seeks) != 1 {
		t.Fatalf("expected no seek after clear, got %v", tr.seeks)
	}
}

func TestABRepeatClampsBToDuration(t *testing.T) {
	e, _ := newTestEngine(t)
	tr := newStubTransport(1)
	tr.duration = 10 * time.Second
	e.Attach(tr)

	e.MarkA(time.Second)
	if !e.SetABRepeat(time.Second, 30*time.Second) {
		t.Fatal("expected SetABRepeat to activate")
	}
	if got := e.ABRepeat().B; got != 10*time.Second {
		t.Fatalf("expected B clamped to duration, got %v", got)
	}
}

func TestCycleABRepeat(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Attach(newStubTransport(1))

	if got := e.CycleABRepeat(time.Second); got != ABSet {
		t.Fatalf("expected a-set, got %v", got)
	}
	if got := e.CycleABRepeat(500 * time.Millisecond); got != ABSet {
		t.Fatalf("expected a-set to hold when B precedes A, got %v", got)
	}
	if got := e.CycleABRepeat(3 * time.Second); got != ABActive {
		t.Fatalf("expected active, got %v", got)
	}
	if got := e.CycleABRepeat(4 * time.Second); got != ABNone {
		t.Fatalf("expected none, got %v", got)
	}
}

func TestCrossfadeRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)
	primary := newStubTransport(0.8)
	next := newStubTransport(1)
	e.Attach(primary)
	e.MarkA(time.Second)

	if err := e.CrossfadeTo(context.Background(), next, 0); err != nil {
		t.Fatalf("CrossfadeTo: %v", err)
	}
	if e.Primary() != next {
		t.Fatal("expected next transport to become primary")
	}
	if next.volume != 0.8 {
		t.Fatalf("expected primary volume restored to 0.8, got %v", next.volume)
	}
	if primary.volume != 0 {
		t.Fatalf("expected faded-out path at volume 0, got %v", primary.volume)
	}
	if !primary.closed || primary.playing {
		t.Fatal("expected old primary paused and closed")
	}
	if e.sources.Load().secondary != nil {
		t.Fatal("expected no secondary source after crossfade")
	}
	if got := e.ABRepeat().Stage; got != ABNone {
		t.Fatalf("expected A/B repeat cleared, got %v", got)
	}
	if e.Crossfading() {
		t.Fatal("expected session to end")
	}
}

func TestCrossfadeInProgressAndAbort(t *testing.T) {
	e, _ := newTestEngine(t)
	primary := newStubTransport(0.6)
	next := newStubTransport(1)
	e.Attach(primary)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.CrossfadeTo(ctx, next, 10*time.Second) }()

	deadline := time.Now().Add(2 * time.Second)
	for !e.Crossfading() {
		if time.Now().After(deadline) {
			t.Fatal("crossfade never started")
		}
		time.Sleep(time.Millisecond)
	}

	other := newStubTransport(1)
	if err := e.CrossfadeTo(context.Background(), other, 0); !errors.Is(err, ErrCrossfadeInProgress) {
		t.Fatalf("expected ErrCrossfadeInProgress, got %v", err)
	}
	if other.playing {
		t.Fatal("expected rejected crossfade to leave its transport untouched")
	}

	cancel()
	err := <-done
	if !errors.Is(err, ErrCrossfade) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrCrossfade wrapping cancellation, got %v", err)
	}
	if e.Primary() != primary {
		t.Fatal("expected primary kept after abort")
	}
	if primary.Volume() != 0.6 {
		t.Fatalf("expected primary volume restored to 0.6, got %v", primary.Volume())
	}
	if !next.closed {
		t.Fatal("expected aborted secondary closed")
	}
}

func TestCrossfadeFailsWhenNextCannotPlay(t *testing.T) {
	e, _ := newTestEngine(t)
	primary := newStubTransport(1)
	next := newStubTransport(1)
	next.playErr = errors.New("decode failed")
	e.Attach(primary)

	err := e.CrossfadeTo(context.Background(), next, 0)
	if !errors.Is(err, ErrCrossfade) {
		t.Fatalf("expected ErrCrossfade, got %v", err)
	}
	if e.Primary() != primary || primary.volume != 1 {
		t.Fatal("expected primary untouched")
	}
}

func TestCrossfadeToNilTransport(t *testing.T) {
	e, _ := newTestEngine(t)
	primary := newStubTransport(0.7)
	e.Attach(primary)

	err := e.CrossfadeTo(context.Background(), nil, 0)
	if !errors.Is(err, ErrCrossfade) || !errors.Is(err, ErrNoTransport) {
		t.Fatalf("expected ErrCrossfade wrapping ErrNoTransport, got %v", err)
	}
	if e.Crossfading() {
		t.Fatal("expected no session after a rejected crossfade")
	}
	if e.Primary() != primary || primary.Volume() != 0.7 {
		t.Fatal("expected primary untouched")
	}
}

func TestFadeOutAndStopRestoresVolume(t *testing.T) {
	e, _ := newTestEngine(t)
	primary := newStubTransport(0.8)
	e.Attach(primary)
	if err := primary.Play(); err != nil {
		t.Fatal(err)
	}

	if err := e.FadeOutAndStop(context.Background(), 0); err != nil {
		t.Fatalf("FadeOutAndStop: %v", err)
	}
	if primary.playing {
		t.Fatal("expected transport paused after the fade")
	}
	if primary.Volume() != 0.8 {
		t.Fatalf("expected volume restored to 0.8, got %v", primary.Volume())
	}
	if e.Primary() != primary || primary.closed {
		t.Fatal("expected the faded transport to stay attached and open")
	}
	if e.Crossfading() {
		t.Fatal("expected session to end")
	}
}

func TestFadeOutAndStopCancelledKeepsPlaying(t *testing.T) {
	e, _ := newTestEngine(t)
	primary := newStubTransport(0.5)
	e.Attach(primary)
	if err := primary.Play(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.FadeOutAndStop(ctx, 10*time.Second) }()

	deadline := time.Now().Add(2 * time.Second)
	for !e.Crossfading() {
		if time.Now().After(deadline) {
			t.Fatal("fade never started")
		}
		time.Sleep(time.Millisecond)
	}
	if err := e.CrossfadeTo(context.Background(), newStubTransport(1), 0); !errors.Is(err, ErrCrossfadeInProgress) {
		t.Fatalf("expected crossfade rejected during fade out, got %v", err)
	}

	cancel()
	err := <-done
	if !errors.Is(err, ErrFadeOut) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrFadeOut wrapping cancellation, got %v", err)
	}
	if !primary.playing {
		t.Fatal("expected playback to continue after a cancelled fade")
	}
	if primary.Volume() != 0.5 {
		t.Fatalf("expected volume restored to 0.5, got %v", primary.Volume())
	}
}

func TestFadeOutAndStopWithoutTransport(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.FadeOutAndStop(context.Background(), 0)
	if !errors.Is(err, ErrFadeOut) || !errors.Is(err, ErrNoTransport) {
		t.Fatalf("expected ErrFadeOut wrapping ErrNoTransport, got %v", err)
	}
}

func TestAnalysisDataBeforeAndAfterBuild(t *testing.T) {
	e, _ := newTestEngine(t)
	if e.FrequencyData() != nil || e.TimeDomainData() != nil {
		t.Fatal("expected nil analysis data before build")
	}

	if err := e.ConfigureAnalysis(1000, 0.5); err == nil {
		t.Fatal("expected non power of two fft size to fail")
	}
	if err := e.ConfigureAnalysis(512, 0.6); err != nil {
		t.Fatalf("ConfigureAnalysis: %v", err)
	}
	mustBuild(t, e)

	if got := len(e.FrequencyData()); got != 256 {
		t.Fatalf("expected 256 frequency bins, got %d", got)
	}
	if got := len(e.TimeDomainData()); got != 512 {
		t.Fatalf("expected 512 time-domain samples, got %d", got)
	}

	if err := e.ConfigureAnalysis(2048, 0.85); err != nil {
		t.Fatalf("ConfigureAnalysis: %v", err)
	}
	f := e.Frame()
	if len(f.Frequency) != 1024 || len(f.TimeDomain) != 2048 {
		t.Fatalf("unexpected frame sizes %d/%d", len(f.Frequency), len(f.TimeDomain))
	}
	for _, v := range f.TimeDomain {
		if v != 0 {
			t.Fatalf("expected silent waveform, got %v", v)
		}
	}
}

func TestTopologyOrder(t *testing.T) {
	var sources atomic.Pointer[sourceSet]
	g, err := buildGraph(SampleRate, &sources, mustAnalyser(t))
	if err != nil {
		t.Fatalf("buildGraph: %v", err)
	}
	if len(g.topo.order) != len(g.topo.kinds) {
		t.Fatalf("expected every node ordered, got %d of %d", len(g.topo.order), len(g.topo.kinds))
	}
	for _, edge := range g.topo.edges {
		if deferred(g.topo.kinds[edge.to]) {
			continue
		}
		if g.topo.position(edge.from) >= g.topo.position(edge.to) {
			t.Fatalf("edge %s -> %s out of order", g.topo.names[edge.from], g.topo.names[edge.to])
		}
	}
	if g.topo.order[len(g.topo.order)-1] != g.output {
		t.Fatal("expected output node last")
	}
}

func TestTopologyRejectsUndelayedCycle(t *testing.T) {
	var topo topology
	a := topo.add(KindGain, "a")
	b := topo.add(KindGain, "b")
	topo.connect(a, b)
	topo.connect(b, a)
	if err := topo.sort(); err == nil {
		t.Fatal("expected cycle without delay line to fail")
	}
}

func TestFeedbackLoopDecays(t *testing.T) {
	src := newStubTransport(1)
	src.pcm = make([]byte, 4)
	binary.LittleEndian.PutUint16(src.pcm, uint16(16384))
	binary.LittleEndian.PutUint16(src.pcm[2:], uint16(16384))

	var sources atomic.Pointer[sourceSet]
	sources.Store(&sourceSet{primary: src})
	g, err := buildGraph(SampleRate, &sources, mustAnalyser(t))
	if err != nil {
		t.Fatalf("buildGraph: %v", err)
	}
	g.params.dry.Set(0)
	g.params.delayMix.Set(1)
	g.params.delayTime.Set(float64(quantumFrames) / SampleRate)
	g.params.feedback.Set(0.5)

	buf := make([]byte, quantumFrames*frameSize)
	peaks := make([]float64, 24)
	for q := range peaks {
		g.renderQuantum(buf)
		for i := 0; i < quantumFrames*2; i++ {
			v := math.Abs(float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))))
			peaks[q] = max(peaks[q], v)
		}
	}

	if peaks[0] != 0 {
		t.Fatalf("expected no output before the first echo, got %v", peaks[0])
	}
	if math.Abs(peaks[1]-0.5) > 1e-3 {
		t.Fatalf("expected first echo at 0.5, got %v", peaks[1])
	}
	if math.Abs(peaks[2]-0.25) > 1e-3 {
		t.Fatalf("expected second echo at 0.25, got %v", peaks[2])
	}
	for q := 2; q < len(peaks); q++ {
		if peaks[q] > peaks[q-1]+1e-9 {
			t.Fatalf("expected decaying echoes, quantum %d grew from %v to %v", q, peaks[q-1], peaks[q])
		}
	}
	if peaks[len(peaks)-1] > 1e-5 {
		t.Fatalf("expected loop to die out, last peak %v", peaks[len(peaks)-1])
	}
}
