package engine

import (
	"io"
	"time"
)

// Transport is a playable source feeding the graph. Read yields interleaved
// signed 16-bit little-endian stereo PCM at the engine sample rate, with the
// transport's volume already applied. A paused or finished transport reads
// silence rather than blocking.
type Transport interface {
	io.Reader

	Position() time.Duration
	Duration() time.Duration
	SeekTo(pos time.Duration) error

	Volume() float64
	SetVolume(v float64)
	SetPlaybackRate(rate float64)

	Play() error
	Pause()

	// Subscribe registers fn for position updates. The returned function
	// removes the subscription.
	Subscribe(fn func(pos time.Duration)) (unsubscribe func())

	Close() error
}
