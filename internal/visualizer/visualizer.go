// Package visualizer draws the engine's analysis data in one of seven
// styles onto a Surface, once per display refresh.
package visualizer

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/olivier-w/harmonia/internal/logging"
)

var (
	// ErrRender wraps any failure during a render tick. The loop stops after
	// one and must be restarted with Start.
	ErrRender = errors.New("visualizer render failed")

	// ErrInvalidQuality is returned by SetQuality for unknown levels.
	ErrInvalidQuality = errors.New("invalid visualizer quality")

	// ErrInvalidColor is returned by SetColors for unparseable colors.
	ErrInvalidColor = errors.New("invalid color")
)

// FrameInterval is the render tick period.
const FrameInterval = time.Second / 60

// Tap is the read side of the analysis node.
type Tap interface {
	FrequencyData() []uint8
	TimeDomainData() []uint8
	ConfigureAnalysis(fftSize int, smoothing float64) error
}

// Style selects a drawing algorithm.
type Style int

const (
	StyleBars Style = iota
	StyleCircular
	StyleWaveform
	StyleSpectrum
	StyleParticles
	StyleRadial
	StyleMirror
)

// StyleInfo describes a style for menus.
type StyleInfo struct {
	Style       Style
	Name        string
	Description string
}

var styleInfo = []StyleInfo{
	{StyleBars, "bars", "vertical bar graph"},
	{StyleCircular, "circular", "spokes around a ring"},
	{StyleWaveform, "waveform", "raw waveform"},
	{StyleSpectrum, "spectrum", "frequency spectrum"},
	{StyleParticles, "particles", "particle field"},
	{StyleRadial, "radial", "rays from the centre"},
	{StyleMirror, "mirror", "bars mirrored top and bottom"},
}

// Styles lists every style in cycling order.
func Styles() []StyleInfo {
	return append([]StyleInfo(nil), styleInfo...)
}

func (s Style) String() string {
	if s < 0 || int(s) >= len(styleInfo) {
		return fmt.Sprintf("Style(%d)", int(s))
	}
	return styleInfo[s].Name
}

// Next returns the style after s, wrapping around.
func (s Style) Next() Style {
	return Style((int(s) + 1) % len(styleInfo))
}

// ParseStyle looks a style up by name.
func ParseStyle(name string) (Style, bool) {
	for _, info := range styleInfo {
		if info.Name == name {
			return info.Style, true
		}
	}
	return StyleBars, false
}

// Quality selects the analyser resolution.
type Quality int

const (
	QualityLow Quality = iota
	QualityMedium
	QualityHigh
)

var qualityNames = [...]string{"low", "medium", "high"}

func (q Quality) String() string {
	if q < 0 || int(q) >= len(qualityNames) {
		return fmt.Sprintf("Quality(%d)", int(q))
	}
	return qualityNames[q]
}

// Valid reports whether q is one of the defined levels.
func (q Quality) Valid() bool {
	return q >= QualityLow && q <= QualityHigh
}

// Analysis returns the FFT size and smoothing for q.
func (q Quality) Analysis() (fftSize int, smoothing float64) {
	switch q {
	case QualityLow:
		return 512, 0.6
	case QualityMedium:
		return 1024, 0.75
	default:
		return 2048, 0.85
	}
}

// Next returns the level after q, wrapping from high to low.
func (q Quality) Next() Quality {
	return Quality((int(q) + 1) % len(qualityNames))
}

// ParseQuality looks a quality up by name.
func ParseQuality(name string) (Quality, bool) {
	for i, n := range qualityNames {
		if n == name {
			return Quality(i), true
		}
	}
	return QualityHigh, false
}

// Renderer polls a Tap and draws the current style.
type Renderer struct {
	log     logrus.FieldLogger
	tap     Tap
	surface Surface
	period  time.Duration

	mu      sync.Mutex
	style   Style
	quality Quality
	theme   Theme
	rng     *rand.Rand
	applied Layout
	lastErr error

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Renderer) { r.log = logging.OrDiscard(log) }
}

// WithInterval overrides the tick period.
func WithInterval(d time.Duration) Option {
	return func(r *Renderer) {
		if d > 0 {
			r.period = d
		}
	}
}

// WithSeed makes the particle jitter reproducible.
func WithSeed(a, b uint64) Option {
	return func(r *Renderer) { r.rng = rand.New(rand.NewPCG(a, b)) }
}

// New returns a stopped renderer drawing bars at high quality.
func New(tap Tap, surface Surface, opts ...Option) *Renderer {
	r := &Renderer{
		log:     logging.Discard(),
		tap:     tap,
		surface: surface,
		period:  FrameInterval,
		style:   StyleBars,
		quality: QualityHigh,
		theme:   DefaultTheme(),
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Style returns the current style.
func (r *Renderer) Style() Style {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.style
}

// SetStyle selects the style used from the next tick. Unknown values draw
// as bars.
func (r *Renderer) SetStyle(s Style) {
	r.mu.Lock()
	r.style = s
	r.mu.Unlock()
}

// Quality returns the current quality.
func (r *Renderer) Quality() Quality {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.quality
}

// SetQuality reconfigures the analyser for q. Styles adapt to whatever
// buffer length the tap returns afterwards.
func (r *Renderer) SetQuality(q Quality) error {
	if !q.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidQuality, int(q))
	}
	r.mu.Lock()
	r.quality = q
	r.mu.Unlock()

	if r.tap == nil {
		return nil
	}
	size, smoothing := q.Analysis()
	if err := r.tap.ConfigureAnalysis(size, smoothing); err != nil {
		r.log.WithError(err).WithField("quality", q).Warn("failed to apply analyser settings")
		return fmt.Errorf("applying %s quality: %w", q, err)
	}
	return nil
}

// Theme returns the current colors.
func (r *Renderer) Theme() Theme {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.theme
}

// SetColors replaces the three theme colors. Colors are hex strings; on any
// parse failure nothing changes.
func (r *Renderer) SetColors(primary, secondary, accent string) error {
	th, err := parseTheme(primary, secondary, accent)
	if err != nil {
		return err
	}
	r.mu.Lock()
	th.Background = r.theme.Background
	r.theme = th
	r.mu.Unlock()
	return nil
}

// Running reports whether the render loop is active.
func (r *Renderer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Err returns the failure that stopped the loop, if any.
func (r *Renderer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Start renders a frame and then one per tick until Stop or a failure.
// Calling Start on a running renderer restarts it.
func (r *Renderer) Start() error {
	if r.tap == nil || r.surface == nil {
		return fmt.Errorf("%w: missing tap or surface", ErrRender)
	}
	r.Stop()

	r.mu.Lock()
	r.applied = Layout{}
	r.lastErr = nil
	r.mu.Unlock()

	if err := r.RenderFrame(); err != nil {
		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()
		r.log.WithError(err).Error("visualizer stopped")
		return err
	}

	stop, done := make(chan struct{}), make(chan struct{})
	r.mu.Lock()
	r.stop, r.done = stop, done
	r.running = true
	r.mu.Unlock()

	go r.loop(stop, done)
	r.log.WithField("style", r.Style()).Info("visualizer started")
	return nil
}

func (r *Renderer) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := r.RenderFrame(); err != nil {
				r.mu.Lock()
				if r.stop == stop {
					r.running = false
				}
				r.lastErr = err
				r.mu.Unlock()
				r.log.WithError(err).Error("visualizer stopped")
				return
			}
		}
	}
}

// Stop cancels the next tick and clears the surface.
func (r *Renderer) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.running = false
	r.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	if r.surface != nil {
		r.surface.Clear()
		present(r.surface)
	}
}

// RenderFrame draws one frame of the current style. A panic inside a style
// is returned as ErrRender.
func (r *Renderer) RenderFrame() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrRender, p)
		}
	}()

	r.mu.Lock()
	style, theme := r.style, r.theme
	r.mu.Unlock()

	d, ok := dispatch[style]
	if !ok {
		d = dispatch[StyleBars]
	}
	var data []uint8
	if d.timeDomain {
		data = r.tap.TimeDomainData()
	} else {
		data = r.tap.FrequencyData()
	}
	if len(data) == 0 {
		return nil
	}

	l := r.fit()
	d.draw(&canvas{s: r.surface, w: l.Width, h: l.Height, theme: theme, rng: r.rng}, data)
	present(r.surface)
	return nil
}

// fit resizes the backing buffer when the layout or pixel ratio changed
// since the last frame and returns the layout in logical units.
func (r *Renderer) fit() Layout {
	l := r.surface.Layout()
	if !(l.PixelRatio > 0) {
		l.PixelRatio = 1
	}
	r.mu.Lock()
	changed := l != r.applied
	r.applied = l
	r.mu.Unlock()
	if changed {
		r.surface.Resize(int(l.Width*l.PixelRatio), int(l.Height*l.PixelRatio))
		r.surface.SetScale(l.PixelRatio)
	}
	return l
}

func present(s Surface) {
	if p, ok := s.(Presenter); ok {
		p.Present()
	}
}

// canvas is what a style draws with: the surface in logical units plus the
// colors for this frame.
type canvas struct {
	s     Surface
	w, h  float64
	theme Theme
	rng   *rand.Rand
}

func (c *canvas) background() {
	c.s.Clear()
	c.s.FillRect(0, 0, c.w, c.h, Solid(c.theme.Background))
}

// sample picks bin i of count partitions across data.
func sample(data []uint8, i, count int) float64 {
	return float64(data[i*len(data)/count]) / 255
}

func minDim(c *canvas) float64 {
	return math.Min(c.w, c.h)
}
