package speech

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vidyadost/vidyadost/internal/logger"
)

// Status describes what the queue is doing. It is published after every
// transition so a front-end can show a "now speaking" indicator next to
// the originating message.
type Status struct {
	Speaking  bool
	MessageID string
	Visemes   []Viseme
	// Pending counts clips waiting behind the current one, synthesized
	// or not.
	Pending int
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	// SynthesisTimeout bounds each synthesis request. Zero means no bound
	// beyond the synthesizer's own.
	SynthesisTimeout time.Duration
	// OnChange is called outside the queue's lock.
	OnChange func(Status)
}

type slot struct {
	messageID string
	text      string
	gen       uint64
	ready     bool
	clip      *Clip // nil after a failed synthesis
}

// Queue is a FIFO of speech clips. A slot is reserved when text is
// enqueued, so playback order is enqueue order no matter which synthesis
// finishes first. Only the head slot may start playing, and only after
// the previous clip reached its terminal event.
type Queue struct {
	synth Synthesizer
	play  Player
	log   *logger.Logger
	opts  QueueOptions

	mu      sync.Mutex
	gen     uint64
	slots   []*slot
	playing *slot
	cancel  context.CancelFunc
}

// NewQueue creates an idle queue.
func NewQueue(synth Synthesizer, play Player, log *logger.Logger, opts QueueOptions) *Queue {
	return &Queue{synth: synth, play: play, log: logger.OrNop(log), opts: opts}
}

// Enqueue reserves the next playback slot for text and starts synthesis
// in the background. Blank text is ignored.
func (q *Queue) Enqueue(text, messageID string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	q.mu.Lock()
	s := &slot{messageID: messageID, text: text, gen: q.gen}
	q.slots = append(q.slots, s)
	st := q.statusLocked()
	q.mu.Unlock()

	q.publish(st)
	go q.synthesize(s)
}

func (q *Queue) synthesize(s *slot) {
	ctx := context.Background()
	if q.opts.SynthesisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.opts.SynthesisTimeout)
		defer cancel()
	}
	clip, err := q.synth.Synthesize(ctx, s.text)

	q.mu.Lock()
	if s.gen != q.gen {
		// Stopped while synthesizing; the slot is gone.
		q.mu.Unlock()
		clip.Release()
		return
	}
	if err != nil {
		q.log.Warn("speech synthesis failed, skipping clip", "message_id", s.messageID, "error", err)
		clip.Release()
		clip = nil
	}
	s.clip = clip
	s.ready = true
	next := q.advanceLocked()
	st := q.statusLocked()
	q.mu.Unlock()

	q.start(next, st)
}

// advanceLocked pops ready slots off the head. Failed slots are dropped;
// the first synthesized one becomes the playing clip. It returns nil when
// a clip is already playing or the head is still synthesizing.
func (q *Queue) advanceLocked() *slot {
	if q.playing != nil {
		return nil
	}
	for len(q.slots) > 0 && q.slots[0].ready {
		head := q.slots[0]
		q.slots = q.slots[1:]
		if head.clip == nil {
			continue
		}
		q.playing = head
		return head
	}
	return nil
}

func (q *Queue) start(s *slot, st Status) {
	if s == nil {
		q.publish(st)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.mu.Lock()
	if q.playing != s {
		// Stop won the race.
		q.mu.Unlock()
		cancel()
		return
	}
	q.cancel = cancel
	q.mu.Unlock()

	q.publish(st)
	go func() {
		err := q.play.Play(ctx, s.clip)
		q.finish(s, err)
	}()
}

// finish handles a clip's terminal event. It is a no-op for a clip that
// is no longer current, so a stopped clip never advances the queue.
func (q *Queue) finish(s *slot, err error) {
	s.clip.Release()

	q.mu.Lock()
	if q.playing != s {
		q.mu.Unlock()
		return
	}
	if err != nil {
		q.log.Warn("speech playback failed", "message_id", s.messageID, "error", err)
	}
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	q.playing = nil
	next := q.advanceLocked()
	st := q.statusLocked()
	q.mu.Unlock()

	q.start(next, st)
}

// Stop halts the current clip, releases every queued clip and empties the
// queue. Synthesis still in flight is discarded when it resolves.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.gen++
	cur := q.playing
	cancel := q.cancel
	pending := q.slots
	q.playing, q.cancel, q.slots = nil, nil, nil
	st := q.statusLocked()
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if cur != nil {
		cur.clip.Release()
	}
	for _, s := range pending {
		s.clip.Release()
	}
	if cur != nil || len(pending) > 0 {
		q.publish(st)
	}
}

// Status returns the current queue status.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statusLocked()
}

func (q *Queue) statusLocked() Status {
	st := Status{Pending: len(q.slots)}
	if q.playing != nil {
		st.Speaking = true
		st.MessageID = q.playing.messageID
		st.Visemes = q.playing.clip.Visemes
	}
	return st
}

func (q *Queue) publish(st Status) {
	if q.opts.OnChange != nil {
		q.opts.OnChange(st)
	}
}
