// Package queue keeps the ordered track list the player walks through and
// crossfades across.
package queue

import "math/rand/v2"

// Track is one playable file.
type Track struct {
	Path  string
	Title string
}

// Queue is an ordered track list with an optional shuffle order. It is only
// mutated from Bubbletea's single-threaded Update loop.
type Queue struct {
	tracks  []Track
	current int
	rng     *rand.Rand

	shuffled     bool
	shuffleOrder []int // shuffle position -> track index
	shufflePos   int
}

// New creates a queue positioned on the first track.
func New(tracks []Track) *Queue {
	return &Queue{tracks: tracks, rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeeded is New with a reproducible shuffle.
func NewSeeded(tracks []Track, a, b uint64) *Queue {
	return &Queue{tracks: tracks, rng: rand.New(rand.NewPCG(a, b))}
}

// Len returns the number of tracks.
func (q *Queue) Len() int { return len(q.tracks) }

// CurrentIndex returns the index of the current track, or -1 after
// WrapToStart.
func (q *Queue) CurrentIndex() int { return q.current }

// Current returns the current track, or nil.
func (q *Queue) Current() *Track { return q.Track(q.current) }

// Track returns track i, or nil when out of range.
func (q *Queue) Track(i int) *Track {
	if i < 0 || i >= len(q.tracks) {
		return nil
	}
	return &q.tracks[i]
}

// nextIndex is the track after the current one in playback order, or -1.
func (q *Queue) nextIndex() int {
	if q.shuffled {
		if q.shufflePos+1 < len(q.shuffleOrder) {
			return q.shuffleOrder[q.shufflePos+1]
		}
		return -1
	}
	if q.current+1 < len(q.tracks) {
		return q.current + 1
	}
	return -1
}

// Next returns the track that Advance would move to, or nil at the end.
func (q *Queue) Next() *Track { return q.Track(q.nextIndex()) }

// Advance moves to the next track in playback order.
func (q *Queue) Advance() bool {
	if q.shuffled {
		if q.shufflePos+1 >= len(q.shuffleOrder) {
			return false
		}
		q.shufflePos++
		q.current = q.shuffleOrder[q.shufflePos]
		return true
	}
	if q.current+1 >= len(q.tracks) {
		return false
	}
	q.current++
	return true
}

// Previous moves back one track in playback order.
func (q *Queue) Previous() bool {
	if q.shuffled {
		if q.shufflePos <= 0 {
			return false
		}
		q.shufflePos--
		q.current = q.shuffleOrder[q.shufflePos]
		return true
	}
	if q.current <= 0 {
		return false
	}
	q.current--
	return true
}

// Peek returns up to n tracks after the current one in list order.
func (q *Queue) Peek(n int) []Track {
	start := q.current + 1
	if start >= len(q.tracks) || n <= 0 {
		return nil
	}
	end := min(start+n, len(q.tracks))
	return append([]Track(nil), q.tracks[start:end]...)
}

// SetCurrentIndex jumps to track i, keeping the shuffle position in sync.
func (q *Queue) SetCurrentIndex(i int) {
	if i < 0 || i >= len(q.tracks) {
		return
	}
	q.current = i
	if q.shuffled {
		for pos, idx := range q.shuffleOrder {
			if idx == i {
				q.shufflePos = pos
				break
			}
		}
	}
}

// WrapToStart positions the queue so that Advance lands on the first track
// of the playback order again.
func (q *Queue) WrapToStart() {
	if q.shuffled {
		q.shufflePos = -1
		return
	}
	q.current = -1
}

// Shuffled reports whether shuffle is on.
func (q *Queue) Shuffled() bool { return q.shuffled }

// EnableShuffle randomizes the order of every track except the current
// one, which stays first.
func (q *Queue) EnableShuffle() {
	n := len(q.tracks)
	if n <= 1 {
		return
	}
	cur := max(q.current, 0)
	order := make([]int, 0, n)
	for i := range n {
		if i != cur {
			order = append(order, i)
		}
	}
	q.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	q.shuffleOrder = append([]int{cur}, order...)
	q.shufflePos = 0
	q.shuffled = true
}

// DisableShuffle returns to list order, keeping the current track.
func (q *Queue) DisableShuffle() {
	q.shuffled = false
	q.shuffleOrder = nil
	q.shufflePos = 0
}
