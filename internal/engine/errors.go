package engine

import "errors"

var (
	// ErrUnsupportedCapability means no realtime audio output could be
	// opened.
	ErrUnsupportedCapability = errors.New("realtime audio unavailable")

	// ErrImpulseGeneration means the reverb impulse could not be built; the
	// reverb branch stays silent.
	ErrImpulseGeneration = errors.New("reverb impulse generation failed")

	// ErrCrossfade wraps any failure that aborted a crossfade.
	ErrCrossfade = errors.New("crossfade failed")

	// ErrCrossfadeInProgress is returned when a crossfade is requested while
	// another is still running.
	ErrCrossfadeInProgress = errors.New("crossfade already in progress")

	// ErrFadeOut wraps the reason a fade-out stopped before silence.
	ErrFadeOut = errors.New("fade out interrupted")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")

	// ErrNoTransport is returned when an operation needs a primary transport
	// and none is attached.
	ErrNoTransport = errors.New("no transport attached")
)
