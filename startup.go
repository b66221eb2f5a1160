package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"

	"github.com/olivier-w/harmonia/internal/engine"
	"github.com/olivier-w/harmonia/internal/logging"
	"github.com/olivier-w/harmonia/internal/media"
	"github.com/olivier-w/harmonia/internal/player"
	"github.com/olivier-w/harmonia/internal/queue"
	"github.com/olivier-w/harmonia/internal/settings"
	"github.com/olivier-w/harmonia/internal/termimg"
	"github.com/olivier-w/harmonia/internal/ui"
	"github.com/olivier-w/harmonia/internal/visualizer"
)

// initialLayout sizes the visualizer surface until the first window size
// message arrives.
var initialLayout = visualizer.Layout{Width: 320, Height: 96, PixelRatio: 2}

// session owns everything that lives for one run of the player.
type session struct {
	log     logrus.FieldLogger
	logFile io.Closer
	store   *settings.Store
	prefs   settings.Settings
	eng     *engine.Engine
	viz     *visualizer.Renderer
	surface *visualizer.RasterSurface
	queue   *queue.Queue
}

func openLog() (*logrus.Logger, io.Closer) {
	path := logging.DefaultPath()
	log, closer, err := logging.Open(path, logging.LevelFromEnv(os.LookupEnv))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
		return logging.Discard(), io.NopCloser(nil)
	}
	return log, closer
}

func loadSettings(log logrus.FieldLogger) (*settings.Store, settings.Settings) {
	path, err := settings.DefaultPath()
	if err != nil {
		log.WithError(err).Warn("no settings location, using defaults")
		return nil, settings.Default()
	}
	store, err := settings.NewStore(path, log)
	if err != nil {
		log.WithError(err).Warn("settings unavailable, using defaults")
		return nil, settings.Default()
	}
	prefs, err := store.Load()
	switch {
	case errors.Is(err, settings.ErrCorrupt):
		log.WithError(err).WithField("path", store.Path()).Warn("ignoring corrupt settings")
	case err != nil:
		log.WithError(err).Warn("reading settings")
	}
	return store, prefs
}

// expandArgs resolves ~ in each argument before handing them to media.
func expandArgs(args []string) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		p, err := homedir.Expand(a)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func buildQueue(args []string) (*queue.Queue, error) {
	args, err := expandArgs(args)
	if err != nil {
		return nil, err
	}
	paths, start, err := media.Expand(args)
	if err != nil {
		return nil, err
	}
	tracks := make([]queue.Track, len(paths))
	for i, p := range paths {
		tracks[i] = queue.Track{Path: p, Title: media.Title(p)}
	}
	q := queue.New(tracks)
	q.SetCurrentIndex(start)
	return q, nil
}

// buildEngine starts the audio graph. Without a usable audio device it
// falls back to a clock-driven device so the visualizer and controls still
// work, silently.
func buildEngine(eng *engine.Engine, log logrus.FieldLogger) error {
	err := eng.EnsureBuilt()
	if !errors.Is(err, engine.ErrUnsupportedCapability) {
		return err
	}
	// EnsureBuilt already warned about the missing device
	log.Debug("falling back to the clock device")
	eng.SetDeviceFactory(engine.NewClockDevice)
	return eng.EnsureBuilt()
}

func opener(log logrus.FieldLogger, volume float64) ui.Opener {
	return func(path string) (engine.Transport, error) {
		p, err := player.Open(path, player.WithLogger(log), player.WithVolume(volume))
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// openFirst opens the current track, moving forward past files that fail
// to decode.
func openFirst(q *queue.Queue, open ui.Opener, log logrus.FieldLogger) (engine.Transport, error) {
	var lastErr error
	for tr := q.Current(); tr != nil; tr = q.Current() {
		t, err := open(tr.Path)
		if err == nil {
			return t, nil
		}
		log.WithError(err).WithField("path", tr.Path).Warn("skipping unplayable track")
		lastErr = fmt.Errorf("%s: %w", tr.Path, err)
		if !q.Advance() {
			break
		}
	}
	if lastErr == nil {
		lastErr = media.ErrNoTracks
	}
	return nil, lastErr
}

// applyVisualizerPrefs restores the saved style, quality and colors.
// Unknown names keep the defaults.
func applyVisualizerPrefs(viz *visualizer.Renderer, prefs settings.Visualizer, log logrus.FieldLogger) {
	if s, ok := visualizer.ParseStyle(prefs.Style); ok {
		viz.SetStyle(s)
	}
	if q, ok := visualizer.ParseQuality(prefs.Quality); ok {
		if err := viz.SetQuality(q); err != nil {
			log.WithError(err).Warn("restoring visualizer quality")
		}
	}
	if err := viz.SetColors(prefs.Primary, prefs.Secondary, prefs.Accent); err != nil {
		log.WithError(err).Warn("restoring visualizer colors")
	}
}

func openSession(args []string) (*session, error) {
	log, logFile := openLog()
	s := &session{log: log, logFile: logFile}
	s.store, s.prefs = loadSettings(log)

	q, err := buildQueue(args)
	if err != nil {
		logFile.Close()
		return nil, err
	}
	s.queue = q

	s.eng = engine.New(engine.WithEffects(s.prefs.Effects), engine.WithLogger(log))
	if err := buildEngine(s.eng, log); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("starting audio engine: %w", err)
	}

	first, err := openFirst(q, opener(log, s.prefs.Volume), log)
	if err != nil {
		s.eng.Close()
		logFile.Close()
		return nil, err
	}
	s.eng.Attach(first)
	if err := first.Play(); err != nil {
		first.Close()
		s.eng.Close()
		logFile.Close()
		return nil, err
	}

	s.surface = visualizer.NewRasterSurface(initialLayout)
	s.viz = visualizer.New(s.eng, s.surface, visualizer.WithLogger(log))
	applyVisualizerPrefs(s.viz, s.prefs.Visualizer, log)
	if err := s.viz.Start(); err != nil {
		log.WithError(err).Warn("visualizer failed to start")
	}

	log.WithFields(logrus.Fields{
		"tracks": q.Len(),
		"start":  q.CurrentIndex(),
	}).Info("session started")
	return s, nil
}

func (s *session) model() ui.Model {
	return ui.New(ui.Config{
		Engine:     s.eng,
		Visualizer: s.viz,
		Surface:    s.surface,
		Image:      termimg.NewRenderer(),
		Store:      s.store,
		Settings:   s.prefs,
		Queue:      s.queue,
		Open:       opener(s.log, s.prefs.Volume),
		Log:        s.log,
	})
}

func (s *session) Close() {
	s.viz.Stop()
	if t := s.eng.Primary(); t != nil {
		t.Close()
	}
	if err := s.eng.Close(); err != nil {
		s.log.WithError(err).Warn("closing audio engine")
	}
	s.log.Info("session closed")
	s.logFile.Close()
}
