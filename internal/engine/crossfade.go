package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// CrossfadeSteps is how many volume updates a crossfade is divided into.
const CrossfadeSteps = 20

var errPrimaryReplaced = errors.New("primary transport replaced during fade")

type crossfadeSession struct {
	primary        Transport
	secondary      Transport
	elapsedSteps   int
	totalSteps     int
	originalVolume float64
}

// Crossfading reports whether a crossfade session is running.
func (e *Engine) Crossfading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.xfade != nil
}

// CrossfadeProgress returns the elapsed and total steps of the running
// session. ok is false when none runs.
func (e *Engine) CrossfadeProgress() (elapsed, total int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.xfade == nil {
		return 0, 0, false
	}
	return e.xfade.elapsedSteps, e.xfade.totalSteps, true
}

// CrossfadeTo fades the primary transport out and next in over d, then makes
// next the primary and closes the old one. It blocks until the fade ends.
//
// A second call while a fade runs returns ErrCrossfadeInProgress and changes
// nothing. If the fade is cancelled through ctx or otherwise fails, next is
// closed, the primary keeps playing at its original volume and the error
// wraps ErrCrossfade.
func (e *Engine) CrossfadeTo(ctx context.Context, next Transport, d time.Duration) error {
	if next == nil {
		return fmt.Errorf("%w: %w", ErrCrossfade, ErrNoTransport)
	}
	s, rate, err := e.beginSession(next)
	if err != nil {
		return err
	}
	defer e.endSession()

	log := e.log.WithFields(logrus.Fields{
		"duration": d,
		"volume":   s.originalVolume,
	})

	next.SetVolume(0)
	next.SetPlaybackRate(rate)
	if err := next.Play(); err != nil {
		return e.abortCrossfade(s, log, fmt.Errorf("starting next track: %w", err))
	}
	e.sources.Store(&sourceSet{primary: s.primary, secondary: next})

	err = e.stepRamp(ctx, s, d, func(frac float64) {
		s.primary.SetVolume(s.originalVolume * (1 - frac))
		next.SetVolume(s.originalVolume * frac)
	})
	if err != nil {
		return e.abortCrossfade(s, log, err)
	}

	e.ClearABRepeat()
	next.SetVolume(s.originalVolume)
	e.sources.Store(&sourceSet{primary: next})
	s.primary.Pause()
	if err := s.primary.Close(); err != nil {
		log.WithError(err).Warn("closing faded-out track")
	}
	log.Debug("crossfade completed")
	return nil
}

// FadeOutAndStop fades the primary transport to silence over d, pauses it
// and then puts its volume back so a later Play resumes at the old level.
// It blocks until the fade ends and cannot overlap a crossfade. When ctx
// ends first, the volume is restored, playback continues and the error
// wraps ErrFadeOut.
func (e *Engine) FadeOutAndStop(ctx context.Context, d time.Duration) error {
	s, _, err := e.beginSession(nil)
	if err != nil {
		return err
	}
	defer e.endSession()

	log := e.log.WithFields(logrus.Fields{
		"duration": d,
		"volume":   s.originalVolume,
	})

	err = e.stepRamp(ctx, s, d, func(frac float64) {
		s.primary.SetVolume(s.originalVolume * (1 - frac))
	})
	if err == nil {
		s.primary.Pause()
	}
	s.primary.SetVolume(s.originalVolume)
	if err != nil {
		log.WithError(err).Debug("fade out interrupted")
		return fmt.Errorf("%w: %w", ErrFadeOut, err)
	}
	log.Debug("faded out and paused")
	return nil
}

// beginSession claims the fade slot for the current primary. It also
// returns the playback rate the incoming transport should run at.
func (e *Engine) beginSession(secondary Transport) (*crossfadeSession, float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Closed {
		return nil, 0, ErrClosed
	}
	if e.xfade != nil {
		return nil, 0, ErrCrossfadeInProgress
	}
	var primary Transport
	if set := e.sources.Load(); set != nil {
		primary = set.primary
	}
	if primary == nil {
		if secondary == nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrFadeOut, ErrNoTransport)
		}
		return nil, 0, fmt.Errorf("%w: %w", ErrCrossfade, ErrNoTransport)
	}
	s := &crossfadeSession{
		primary:        primary,
		secondary:      secondary,
		totalSteps:     CrossfadeSteps,
		originalVolume: primary.Volume(),
	}
	e.xfade = s
	return s, e.fx.PlaybackRate, nil
}

func (e *Engine) endSession() {
	e.mu.Lock()
	e.xfade = nil
	e.mu.Unlock()
}

// stepRamp calls apply with 0, 1/CrossfadeSteps, ..., 1 spread evenly over
// d. It stops early when ctx ends or the session's primary is replaced.
func (e *Engine) stepRamp(ctx context.Context, s *crossfadeSession, d time.Duration, apply func(frac float64)) error {
	var tick <-chan time.Time
	if step := d / CrossfadeSteps; step > 0 {
		ticker := time.NewTicker(step)
		defer ticker.Stop()
		tick = ticker.C
	}

	for i := 0; i <= CrossfadeSteps; i++ {
		if e.sources.Load().primary != s.primary {
			return errPrimaryReplaced
		}
		apply(float64(i) / CrossfadeSteps)

		e.mu.Lock()
		s.elapsedSteps = i
		e.mu.Unlock()

		if i == CrossfadeSteps {
			break
		}
		if tick == nil {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		}
	}
	return nil
}

func (e *Engine) abortCrossfade(s *crossfadeSession, log logrus.FieldLogger, cause error) error {
	if set := e.sources.Load(); set.primary == s.primary {
		e.sources.Store(&sourceSet{primary: s.primary})
	}
	s.primary.SetVolume(s.originalVolume)
	s.secondary.Pause()
	if err := s.secondary.Close(); err != nil {
		log.WithError(err).Warn("closing aborted crossfade track")
	}
	log.WithError(cause).Warn("crossfade aborted")
	return fmt.Errorf("%w: %w", ErrCrossfade, cause)
}
