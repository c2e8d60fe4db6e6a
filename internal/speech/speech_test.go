package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedSynth resolves each text only when the test releases it.
type gatedSynth struct {
	mu    sync.Mutex
	gates map[string]chan error
	clips map[string]*Clip
}

func newGatedSynth(texts ...string) *gatedSynth {
	g := &gatedSynth{gates: map[string]chan error{}, clips: map[string]*Clip{}}
	for _, t := range texts {
		g.gates[t] = make(chan error, 1)
	}
	return g
}

func (g *gatedSynth) Synthesize(ctx context.Context, text string) (*Clip, error) {
	g.mu.Lock()
	gate := g.gates[text]
	g.mu.Unlock()
	select {
	case err := <-gate:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	clip := NewClip([]byte(text), "audio/wav", []Viseme{{Start: 0, End: 0.1, Value: "A"}}, nil)
	g.mu.Lock()
	g.clips[text] = clip
	g.mu.Unlock()
	return clip, nil
}

func (g *gatedSynth) resolve(text string, err error) { g.gates[text] <- err }

func (g *gatedSynth) clip(text string) *Clip {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clips[text]
}

// recordingPlayer records start order. With hold set, each clip plays
// until the test calls end or the context is cancelled.
type recordingPlayer struct {
	hold bool

	mu      sync.Mutex
	started []string
	ends    chan struct{}
}

func newRecordingPlayer(hold bool) *recordingPlayer {
	return &recordingPlayer{hold: hold, ends: make(chan struct{}, 16)}
}

func (p *recordingPlayer) Play(ctx context.Context, clip *Clip) error {
	p.mu.Lock()
	p.started = append(p.started, string(clip.Audio()))
	p.mu.Unlock()
	if !p.hold {
		return nil
	}
	select {
	case <-p.ends:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *recordingPlayer) end() { p.ends <- struct{}{} }

func (p *recordingPlayer) order() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.started...)
}

func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := q.Status()
		return !st.Speaking && st.Pending == 0
	}, 2*time.Second, time.Millisecond)
}

func TestQueue_PlaysInEnqueueOrderDespiteOutOfOrderSynthesis(t *testing.T) {
	synth := newGatedSynth("one", "two", "three")
	player := newRecordingPlayer(false)
	q := NewQueue(synth, player, nil, QueueOptions{})

	q.Enqueue("one", "m1")
	q.Enqueue("two", "m2")
	q.Enqueue("three", "m3")

	synth.resolve("three", nil)
	synth.resolve("two", nil)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, player.order(), "nothing may play before the head is synthesized")

	synth.resolve("one", nil)
	waitIdle(t, q)
	assert.Equal(t, []string{"one", "two", "three"}, player.order())

	for _, text := range []string{"one", "two", "three"} {
		assert.True(t, synth.clip(text).Released(), "clip %q not released", text)
	}
}

func TestQueue_OneClipAtATime(t *testing.T) {
	synth := newGatedSynth("a", "b")
	player := newRecordingPlayer(true)
	var mu sync.Mutex
	var speaking []string
	q := NewQueue(synth, player, nil, QueueOptions{OnChange: func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		if s.Speaking {
			speaking = append(speaking, s.MessageID)
		}
	}})

	q.Enqueue("a", "m1")
	q.Enqueue("b", "m2")
	synth.resolve("a", nil)
	synth.resolve("b", nil)

	require.Eventually(t, func() bool { return q.Status().MessageID == "m1" }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"a"}, player.order())
	st := q.Status()
	assert.Equal(t, 1, st.Pending)
	assert.Len(t, st.Visemes, 1)

	player.end()
	require.Eventually(t, func() bool { return q.Status().MessageID == "m2" }, time.Second, time.Millisecond)
	player.end()
	waitIdle(t, q)
	assert.Equal(t, []string{"a", "b"}, player.order())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, speaking, "m1")
	assert.Contains(t, speaking, "m2")
}

func TestQueue_FailedSynthesisIsSkipped(t *testing.T) {
	synth := newGatedSynth("bad", "good")
	player := newRecordingPlayer(false)
	q := NewQueue(synth, player, nil, QueueOptions{})

	q.Enqueue("bad", "m1")
	q.Enqueue("good", "m2")
	synth.resolve("good", nil)
	synth.resolve("bad", ErrSynthesis)

	waitIdle(t, q)
	assert.Equal(t, []string{"good"}, player.order())
}

func TestQueue_StopReleasesAndDoesNotAdvanceTwice(t *testing.T) {
	synth := newGatedSynth("first", "second", "late", "after")
	player := newRecordingPlayer(true)
	q := NewQueue(synth, player, nil, QueueOptions{})

	q.Enqueue("first", "m1")
	q.Enqueue("second", "m2")
	q.Enqueue("late", "m3")
	synth.resolve("first", nil)
	synth.resolve("second", nil)
	require.Eventually(t, func() bool { return q.Status().Speaking }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return synth.clip("second") != nil }, time.Second, time.Millisecond)

	q.Stop()
	assert.True(t, synth.clip("first").Released())
	assert.True(t, synth.clip("second").Released())
	assert.Equal(t, Status{}, q.Status())

	// A synthesis resolving after Stop must not restart playback.
	synth.resolve("late", nil)
	require.Eventually(t, func() bool { return synth.clip("late") != nil && synth.clip("late").Released() }, time.Second, time.Millisecond)

	q.Enqueue("after", "m4")
	synth.resolve("after", nil)
	require.Eventually(t, func() bool { return q.Status().MessageID == "m4" }, time.Second, time.Millisecond)
	player.end()
	waitIdle(t, q)

	assert.Equal(t, []string{"first", "after"}, player.order())
}

func TestQueue_IgnoresBlankText(t *testing.T) {
	q := NewQueue(newGatedSynth(), newRecordingPlayer(false), nil, QueueOptions{})
	q.Enqueue("   ", "m1")
	assert.Equal(t, Status{}, q.Status())
}

func TestClip_ReleaseOnce(t *testing.T) {
	calls := 0
	c := NewClip([]byte("x"), "audio/wav", nil, func() { calls++ })
	c.Release()
	c.Release()
	assert.Equal(t, 1, calls)
	assert.Nil(t, c.Audio())
	assert.True(t, c.Released())

	var nilClip *Clip
	assert.NotPanics(t, nilClip.Release)
}

func TestHTTPSynthesizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Plants make food.", r.URL.Query().Get("text"))
		assert.Equal(t, "en_US-lessac-medium", r.URL.Query().Get("voice"))
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("Visemes", `[{"start":0,"end":0.2,"value":"B"}]`)
		_, _ = w.Write([]byte("RIFF...."))
	}))
	defer srv.Close()

	s := NewHTTPSynthesizer(srv.URL, "en_US-lessac-medium", time.Second, nil)
	clip, err := s.Synthesize(context.Background(), "  Plants make food. ")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF...."), clip.Audio())
	assert.Equal(t, []Viseme{{Start: 0, End: 0.2, Value: "B"}}, clip.Visemes)
}

func TestHTTPSynthesizer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"json error body", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"error":"voice not found"}`))
		}},
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"empty audio", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "audio/wav")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := NewHTTPSynthesizer(srv.URL, "", time.Second, nil).Synthesize(context.Background(), "hi")
			assert.ErrorIs(t, err, ErrSynthesis)
		})
	}
}

func TestHTTPSynthesizer_MalformedVisemesIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("Visemes", `not json`)
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	clip, err := NewHTTPSynthesizer(srv.URL, "", time.Second, nil).Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	assert.Empty(t, clip.Visemes)
}

func TestExecPlayer_CommandArgs(t *testing.T) {
	p, err := NewExecPlayer("ffplay -nodisp -autoexit {file}")
	require.NoError(t, err)
	assert.Equal(t, []string{"-nodisp", "-autoexit", "/tmp/a.wav"}, p.commandArgs("/tmp/a.wav"))

	p, err = NewExecPlayer("aplay")
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/a.wav"}, p.commandArgs("/tmp/a.wav"))

	_, err = NewExecPlayer("  ")
	assert.Error(t, err)
}

func TestExecPlayer_Play(t *testing.T) {
	if _, err := os.Stat("/bin/true"); err != nil {
		t.Skip("/bin/true not available")
	}
	p, err := NewExecPlayer("/bin/true {file}")
	require.NoError(t, err)
	assert.NoError(t, p.Play(context.Background(), NewClip([]byte("x"), "audio/mpeg", nil, nil)))

	released := NewClip([]byte("x"), "", nil, nil)
	released.Release()
	assert.Error(t, p.Play(context.Background(), released))
}

func TestRecognizer(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantText   string
		wantStatus string
	}{
		{"display text", `{"RecognitionStatus":"Success","DisplayText":"What is rain?"}`, "What is rain?", "Success"},
		{"nbest display", `{"Status":"Success","NBest":[{"Display":"Why is the sky blue?","Lexical":"why is the sky blue"}]}`, "Why is the sky blue?", "Success"},
		{"nbest lexical", `{"reason":"RecognizedSpeech","NBest":[{"Lexical":"idk"}]}`, "idk", "RecognizedSpeech"},
		{"no match", `{"RecognitionStatus":"NoMatch"}`, "", "NoMatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "hi-IN", r.URL.Query().Get("language"))
				assert.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
				body, _ := io.ReadAll(r.Body)
				assert.Equal(t, []byte("audio"), body)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			r := NewRecognizer("centralindia", "secret", time.Second).WithEndpoint(srv.URL)
			got, err := r.Recognize(context.Background(), []byte("audio"), "", "hi-IN")
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, got.Text)
			assert.Equal(t, tt.wantStatus, got.Status)
		})
	}
}

func TestRecognizer_Errors(t *testing.T) {
	r := NewRecognizer("centralindia", "secret", time.Second)
	_, err := r.Recognize(context.Background(), nil, "", "")
	assert.ErrorIs(t, err, ErrNoAudio)

	_, err = NewRecognizer("", "", time.Second).Recognize(context.Background(), []byte("a"), "", "")
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()
	_, err = r.WithEndpoint(srv.URL).Recognize(context.Background(), []byte("a"), "", "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoAudio))
	assert.Contains(t, err.Error(), "403")
}
