// Package speech turns finalized answers into audible speech. Clips are
// synthesized concurrently but played strictly in enqueue order, one at a
// time.
package speech

import (
	"context"
	"sync"
)

// Viseme is one timed mouth-shape marker reported by the synthesizer.
type Viseme struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Value string  `json:"value"`
}

// Clip is synthesized audio owned by the queue until it reaches a
// terminal event, at which point Release frees it.
type Clip struct {
	ContentType string
	Visemes     []Viseme

	mu       sync.Mutex
	audio    []byte
	released bool
	once     sync.Once
	release  func()
}

// NewClip wraps audio. onRelease, when set, runs once from Release.
func NewClip(audio []byte, contentType string, visemes []Viseme, onRelease func()) *Clip {
	return &Clip{audio: audio, ContentType: contentType, Visemes: visemes, release: onRelease}
}

// Audio returns the encoded audio, or nil once the clip was released.
func (c *Clip) Audio() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audio
}

// Released reports whether Release has run.
func (c *Clip) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// Release frees the audio buffer. Safe to call more than once and on a
// nil clip.
func (c *Clip) Release() {
	if c == nil {
		return
	}
	c.once.Do(func() {
		c.mu.Lock()
		c.audio = nil
		c.released = true
		c.mu.Unlock()
		if c.release != nil {
			c.release()
		}
	})
}

// Synthesizer converts text to a clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Clip, error)
}

// Player plays a clip and blocks until it ends, fails, or ctx is
// cancelled.
type Player interface {
	Play(ctx context.Context, clip *Clip) error
}
