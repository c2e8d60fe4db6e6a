package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidyadost/vidyadost/internal/imagesearch"
	"github.com/vidyadost/vidyadost/internal/llm"
	"github.com/vidyadost/vidyadost/internal/pedagogy"
	"github.com/vidyadost/vidyadost/internal/quiz"
	"github.com/vidyadost/vidyadost/internal/store"
	"github.com/vidyadost/vidyadost/internal/transcript"
)

type memTranscripts struct {
	mu    sync.Mutex
	turns map[string][]transcript.Turn
	err   error
}

func newMemTranscripts() *memTranscripts {
	return &memTranscripts{turns: map[string][]transcript.Turn{}}
}

func (m *memTranscripts) Load(_ context.Context, key string) ([]transcript.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]transcript.Turn(nil), m.turns[key]...), nil
}

func (m *memTranscripts) Append(_ context.Context, key, user, assistant string) (transcript.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := transcript.Turn{User: user, Assistant: assistant, TS: int64(len(m.turns[key]) + 1)}
	m.turns[key] = append(m.turns[key], t)
	return t, nil
}

func (m *memTranscripts) get(key string) []transcript.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transcript.Turn(nil), m.turns[key]...)
}

type fakeSpeaker struct {
	mu     sync.Mutex
	stops  int
	queued []string
	ids    []string
}

func (f *fakeSpeaker) Enqueue(text, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, text)
	f.ids = append(f.ids, id)
}

func (f *fakeSpeaker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeSpeaker) snapshot() (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops, append([]string(nil), f.queued...)
}

type fakeImages struct {
	mu      sync.Mutex
	img     *imagesearch.Image
	err     error
	queries []string
}

func (f *fakeImages) Search(_ context.Context, q string) (*imagesearch.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.img, f.err
}

type countingGenerator struct {
	mu    sync.Mutex
	calls []quiz.Request
}

func (g *countingGenerator) Generate(_ context.Context, req quiz.Request) ([]quiz.RawQuestion, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	out := make([]quiz.RawQuestion, quiz.Size)
	for i := range out {
		idx := 1
		out[i] = quiz.RawQuestion{Question: fmt.Sprintf("Q%d", i), Options: []string{"a", "b", "c", "d"}, AnswerIndex: &idx}
	}
	return out, nil
}

func (g *countingGenerator) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakeResults struct {
	mu    sync.Mutex
	saved []store.QuizResultRecord
}

func (f *fakeResults) Save(_ context.Context, rec store.QuizResultRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeResults) Latest(context.Context) (*store.QuizResultRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return nil, nil
	}
	r := f.saved[len(f.saved)-1]
	return &r, nil
}

type harness struct {
	c       *Controller
	mock    *llm.MockProvider
	hist    *memTranscripts
	speaker *fakeSpeaker
	images  *fakeImages
	gen     *countingGenerator
	results *fakeResults
}

func newHarness(t *testing.T, responses ...llm.MockResponse) *harness {
	t.Helper()
	h := &harness{
		mock:    llm.NewMockProvider(responses...),
		hist:    newMemTranscripts(),
		speaker: &fakeSpeaker{},
		images:  &fakeImages{},
		gen:     &countingGenerator{},
		results: &fakeResults{},
	}
	h.c = New(Deps{
		Provider:      h.mock,
		Transcripts:   h.hist,
		Images:        h.images,
		Speaker:       h.speaker,
		QuizGenerator: h.gen,
		Results:       h.results,
	}, Options{
		Profile:            Profile{Name: "Asha", Age: 11, Standard: "6th"},
		AltLanguageDefault: "Hindi",
		HistoryTurns:       8,
		FinishDelay:        50 * time.Millisecond,
	})
	t.Cleanup(h.c.Close)
	return h
}

func text(chunks ...string) llm.MockResponse {
	return llm.MockResponse{Chunks: chunks}
}

func photosynthesis(t *testing.T) Session {
	t.Helper()
	s, err := NewSession("6th", "Science", "Biology", "Photosynthesis")
	require.NoError(t, err)
	return s
}

func TestNewSession(t *testing.T) {
	s, err := NewSession(" 6th ", "Science", "Biology", "Photosynthesis")
	require.NoError(t, err)
	assert.Equal(t, "6th|Science|Biology|Photosynthesis", s.Key)
	assert.Equal(t, "Explain Photosynthesis for 6th Science in simple steps.", s.LessonPrompt())

	_, err = NewSession("6th", "", "Biology", "Photosynthesis")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestAsk_StreamsCleansSpeaksAndPersists(t *testing.T) {
	h := newHarness(t, text("Plants make ", "food from light.\n", `@@meta {"image_keyword": "Leaf diagram"}`))
	sess := photosynthesis(t)
	require.NoError(t, h.c.StartSession(context.Background(), sess))

	var mu sync.Mutex
	var seen []string
	h.c.SetObserver(func(ev Event) {
		if ev.Type != EventMessage {
			return
		}
		for _, m := range h.c.Snapshot().Messages {
			if m.ID == ev.MessageID {
				mu.Lock()
				seen = append(seen, m.Answer)
				mu.Unlock()
			}
		}
	})

	msg, err := h.c.Ask(context.Background(), "  What is photosynthesis?  ")
	require.NoError(t, err)
	assert.Equal(t, "What is photosynthesis?", msg.Question)
	assert.Equal(t, "Plants make food from light.", msg.Answer)
	assert.Equal(t, "Leaf diagram", msg.ImageKeyword)
	assert.True(t, msg.DisplayReady)

	mu.Lock()
	assert.Contains(t, seen, "Plants make")
	for _, s := range seen {
		assert.NotContains(t, s, "@@")
	}
	mu.Unlock()

	_, queued := h.speaker.snapshot()
	assert.Equal(t, []string{"Plants make food from light."}, queued)

	turns := h.hist.get(sess.Key)
	require.Len(t, turns, 1)
	assert.Equal(t, "What is photosynthesis?", turns[0].User)
	assert.Equal(t, "Plants make food from light.", turns[0].Assistant)

	snap := h.c.Snapshot()
	assert.False(t, snap.Loading)
	assert.Equal(t, msg.ID, snap.CurrentID)

	call, ok := h.mock.LastCall()
	require.True(t, ok)
	assert.Contains(t, call.System, "topic: Photosynthesis")
	assert.Contains(t, call.System, "userAge: 11")
	assert.Contains(t, call.System, "altLanguage: none")
}

func TestAsk_RejectsEmptyQuestion(t *testing.T) {
	h := newHarness(t)
	_, err := h.c.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Equal(t, 0, h.mock.CallCount())
	assert.Empty(t, h.c.Snapshot().Messages)
}

func TestAsk_StopsPlaybackFirst(t *testing.T) {
	h := newHarness(t, text("one"), text("two"))
	for _, q := range []string{"first", "second"} {
		_, err := h.c.Ask(context.Background(), q)
		require.NoError(t, err)
	}
	stops, queued := h.speaker.snapshot()
	assert.Equal(t, 2, stops)
	assert.Equal(t, []string{"one", "two"}, queued)
}

func TestAsk_FailureShowsApologyAndSkipsHistory(t *testing.T) {
	h := newHarness(t, llm.MockResponse{Err: &llm.ErrProviderUnavailable{Err: errors.New("503")}})
	sess := photosynthesis(t)
	require.NoError(t, h.c.StartSession(context.Background(), sess))

	msg, err := h.c.Ask(context.Background(), "What is chlorophyll?")
	require.Error(t, err)
	assert.Equal(t, Apology, msg.Answer)
	assert.True(t, msg.Failed)
	assert.True(t, msg.DisplayReady)

	assert.Empty(t, h.hist.get(sess.Key))
	_, queued := h.speaker.snapshot()
	assert.Empty(t, queued)
	assert.False(t, h.c.Snapshot().Loading)
}

func TestAsk_TwoMissesSwitchToImageModeOnce(t *testing.T) {
	h := newHarness(t,
		text("Let us try again."),
		text("Leaves catch sunlight.\nImage Keyword: Photosynthesis leaf diagram"),
		text("Good question."),
	)
	h.images.img = &imagesearch.Image{URL: "https://img.example/leaf.png"}
	require.NoError(t, h.c.StartSession(context.Background(), photosynthesis(t)))

	_, err := h.c.Ask(context.Background(), "I don't know")
	require.NoError(t, err)
	assert.Equal(t, pedagogy.StyleNormal, h.c.Snapshot().Pedagogy.Style)

	msg, err := h.c.Ask(context.Background(), "idk")
	require.NoError(t, err)

	ped := h.c.Snapshot().Pedagogy
	assert.Equal(t, pedagogy.StyleImage, ped.Style)
	assert.True(t, ped.UseAltLanguage)
	assert.True(t, ped.ImageShownOnce)
	assert.Equal(t, 0, ped.ConsecutiveMisses)

	call, _ := h.mock.LastCall()
	assert.Contains(t, call.System, "altLanguage: Hindi")
	assert.Contains(t, call.System, styleText[pedagogy.StyleImage])

	assert.Equal(t, "Leaves catch sunlight.\n\nCan you see the image on the right? It shows Photosynthesis leaf diagram.\n\nImage URL: https://img.example/leaf.png", msg.Answer)
	require.Len(t, h.images.queries, 1)
	assert.Equal(t, "Photosynthesis leaf diagram grade 6th Science Photosynthesis kid-friendly educational diagram simple illustration", h.images.queries[0])
	assert.Equal(t, "https://img.example/leaf.png", h.c.Snapshot().Image.URL)

	// Still image style, but the session already showed its image.
	msg, err = h.c.Ask(context.Background(), "why green?")
	require.NoError(t, err)
	assert.Equal(t, "Good question.", msg.Answer)
	assert.Len(t, h.images.queries, 1)
}

func TestAsk_ImageFailureAppendsFallbackSentence(t *testing.T) {
	h := newHarness(t, text("Roots drink water."))
	h.images.err = errors.New("quota")
	require.NoError(t, h.c.StartSession(context.Background(), photosynthesis(t)))
	require.NoError(t, h.c.SetLearningStyle(pedagogy.StyleImage))

	msg, err := h.c.Ask(context.Background(), "how do roots work")
	require.NoError(t, err)
	assert.Equal(t, "Roots drink water.\n\nLet me explain Photosynthesis clearly.", msg.Answer)

	snap := h.c.Snapshot()
	assert.False(t, snap.Pedagogy.ImageShownOnce)
	assert.Nil(t, snap.Image)
	assert.Equal(t, "quota", snap.ImageError)
}

func TestAsk_ComprehensionStreakStartsQuizOnce(t *testing.T) {
	h := newHarness(t, text("Great."), text("Well done."))
	require.NoError(t, h.c.StartSession(context.Background(), photosynthesis(t)))

	_, err := h.c.Ask(context.Background(), "got it")
	require.NoError(t, err)
	_, err = h.c.Ask(context.Background(), "I understand")
	require.NoError(t, err)
	h.c.Wait()

	assert.Equal(t, 1, h.gen.count())
	snap := h.c.Snapshot()
	assert.Equal(t, 0, snap.Pedagogy.CorrectStreak)
	assert.Equal(t, quiz.StatusInProgress, snap.Quiz.Status)

	// The quiz covers the whole session, including the triggering turn.
	req := h.gen.calls[0]
	require.Len(t, req.Turns, 2)
	assert.Equal(t, "I understand", req.Turns[1].User)
	assert.Equal(t, "Photosynthesis", req.Topic)
	assert.Equal(t, 11, req.Age)
}

func TestStartSession_RestoresHistoryAndQueuesLesson(t *testing.T) {
	h := newHarness(t, text("Sure."))
	sess := photosynthesis(t)
	h.hist.turns[sess.Key] = []transcript.Turn{
		{User: "second", Assistant: "B", TS: 2000},
		{User: "first", Assistant: "A", TS: 1000},
	}
	h.hist.turns["other|key"] = []transcript.Turn{{User: "x", Assistant: "y", TS: 1}}

	require.NoError(t, h.c.StartSession(context.Background(), sess))
	snap := h.c.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "first", snap.Messages[0].Question)
	assert.Equal(t, "second", snap.Messages[1].Question)
	assert.True(t, snap.Messages[0].DisplayReady)
	assert.Equal(t, pedagogy.NewState(), snap.Pedagogy)

	assert.Equal(t, "Explain Photosynthesis for 6th Science in simple steps.", h.c.ConsumePendingLessonPrompt())
	assert.Empty(t, h.c.ConsumePendingLessonPrompt())

	_, err := h.c.Ask(context.Background(), "and then?")
	require.NoError(t, err)
	call, _ := h.mock.LastCall()
	require.Len(t, call.Messages, 5)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "first"}, call.Messages[0])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "B"}, call.Messages[3])
}

func TestStartSession_HistoryFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.hist.err = errors.New("disk gone")
	err := h.c.StartSession(context.Background(), photosynthesis(t))
	require.Error(t, err)
	snap := h.c.Snapshot()
	require.NotNil(t, snap.Session)
	assert.Empty(t, snap.Messages)
}

func TestAsk_SendsOnlyLastEightTurns(t *testing.T) {
	h := newHarness(t, text("ok"))
	sess := photosynthesis(t)
	for i := 1; i <= 10; i++ {
		h.hist.turns[sess.Key] = append(h.hist.turns[sess.Key], transcript.Turn{
			User: fmt.Sprintf("q%d", i), Assistant: fmt.Sprintf("a%d", i), TS: int64(i),
		})
	}
	require.NoError(t, h.c.StartSession(context.Background(), sess))

	_, err := h.c.Ask(context.Background(), "next")
	require.NoError(t, err)
	call, _ := h.mock.LastCall()
	require.Len(t, call.Messages, 17)
	assert.Equal(t, "q3", call.Messages[0].Content)
	assert.Equal(t, "next", call.Messages[16].Content)
}

func TestAsk_NewQuestionSupersedesStreamingOne(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, llm.MockResponse{Chunks: []string{"old"}, Wait: gate}, text("new answer"))
	sess := photosynthesis(t)
	require.NoError(t, h.c.StartSession(context.Background(), sess))

	errc := make(chan error, 1)
	go func() {
		_, err := h.c.Ask(context.Background(), "slow question")
		errc <- err
	}()
	require.Eventually(t, func() bool { return h.mock.CallCount() == 1 }, time.Second, time.Millisecond)

	msg, err := h.c.Ask(context.Background(), "fast question")
	require.NoError(t, err)
	assert.Equal(t, "new answer", msg.Answer)
	assert.ErrorIs(t, <-errc, ErrSuperseded)

	turns := h.hist.get(sess.Key)
	require.Len(t, turns, 1)
	assert.Equal(t, "fast question", turns[0].User)
	assert.False(t, h.c.Snapshot().Loading)
}

func TestAsk_SessionChangeDiscardsAnswer(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, llm.MockResponse{Chunks: []string{"late"}, Wait: gate})
	first := photosynthesis(t)
	require.NoError(t, h.c.StartSession(context.Background(), first))

	errc := make(chan error, 1)
	go func() {
		_, err := h.c.Ask(context.Background(), "question")
		errc <- err
	}()
	require.Eventually(t, func() bool { return h.mock.CallCount() == 1 }, time.Second, time.Millisecond)

	second, err := NewSession("7th", "Maths", "Numbers", "Fractions")
	require.NoError(t, err)
	require.NoError(t, h.c.StartSession(context.Background(), second))

	assert.ErrorIs(t, <-errc, ErrSuperseded)
	snap := h.c.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Equal(t, "Fractions", snap.Session.Topic)
	assert.Empty(t, h.hist.get(first.Key))
	assert.False(t, snap.Loading)
}

func TestAsk_QuizTriggerDroppedWhenSessionChanges(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, text("Great."), llm.MockResponse{Chunks: []string{"Well done."}, Wait: gate})
	require.NoError(t, h.c.StartSession(context.Background(), photosynthesis(t)))

	_, err := h.c.Ask(context.Background(), "got it")
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := h.c.Ask(context.Background(), "I understand")
		errc <- err
	}()
	require.Eventually(t, func() bool { return h.mock.CallCount() == 2 }, time.Second, time.Millisecond)

	second, err := NewSession("7th", "Maths", "Numbers", "Fractions")
	require.NoError(t, err)
	require.NoError(t, h.c.StartSession(context.Background(), second))
	close(gate)

	assert.ErrorIs(t, <-errc, ErrSuperseded)
	h.c.Wait()

	snap := h.c.Snapshot()
	assert.Equal(t, "Fractions", snap.Session.Topic)
	assert.Equal(t, quiz.StatusIdle, snap.Quiz.Status)
	assert.Zero(t, h.gen.count())
}

func TestStartQuiz_AfterSessionChangeUsesNewSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.c.StartSession(context.Background(), photosynthesis(t)))
	second, err := NewSession("7th", "Maths", "Numbers", "Fractions")
	require.NoError(t, err)
	require.NoError(t, h.c.StartSession(context.Background(), second))

	require.NoError(t, h.c.StartQuiz(context.Background()))
	require.Equal(t, 1, h.gen.count())
	assert.Equal(t, "Fractions", h.gen.calls[0].Topic)
}

func TestQuiz_FinishRecordsScoreAndEndsSession(t *testing.T) {
	h := newHarness(t)
	sess := photosynthesis(t)
	require.NoError(t, h.c.StartSession(context.Background(), sess))
	require.NoError(t, h.c.StartQuiz(context.Background()))
	assert.ErrorIs(t, h.c.StartQuiz(context.Background()), quiz.ErrQuizActive)

	for _, choice := range []int{1, 1, 0, 1} {
		_, err := h.c.AnswerQuiz(choice)
		require.NoError(t, err)
	}
	snap := h.c.Snapshot()
	require.NotNil(t, snap.LastScore)
	assert.Equal(t, 3, snap.LastScore.Score)
	assert.Equal(t, quiz.Size, snap.LastScore.Total)
	assert.Equal(t, quiz.StatusFinished, snap.Quiz.Status)

	h.c.Wait()
	snap = h.c.Snapshot()
	assert.Nil(t, snap.Session)
	assert.Equal(t, quiz.StatusIdle, snap.Quiz.Status)
	require.NotNil(t, snap.LastScore, "last score survives the session")

	require.Len(t, h.results.saved, 1)
	assert.Equal(t, sess.Key, h.results.saved[0].SessionKey)
	assert.Equal(t, 3, h.results.saved[0].Score)

	other := newHarness(t)
	other.c.deps.Results = h.results
	require.NoError(t, other.c.RestoreLastScore(context.Background()))
	assert.Equal(t, 3, other.c.Snapshot().LastScore.Score)
}

func TestQuiz_RequiresSession(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.c.StartQuiz(context.Background()), ErrNoSession)
}

func TestSetLearningStyle(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.c.SetLearningStyle(pedagogy.StyleStepByStep))
	assert.Equal(t, pedagogy.StyleStepByStep, h.c.Snapshot().Pedagogy.Style)
	assert.Error(t, h.c.SetLearningStyle(pedagogy.Style(9)))
}

func TestEndSession(t *testing.T) {
	h := newHarness(t, text("hello"))
	require.NoError(t, h.c.StartSession(context.Background(), photosynthesis(t)))
	_, err := h.c.Ask(context.Background(), "hi")
	require.NoError(t, err)

	h.c.EndSession()
	snap := h.c.Snapshot()
	assert.Nil(t, snap.Session)
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.PendingPrompt)
}

func TestAsk_WithoutSessionDoesNotPersist(t *testing.T) {
	h := newHarness(t, text("Anything you like."))
	msg, err := h.c.Ask(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Anything you like.", msg.Answer)
	for _, turns := range h.hist.turns {
		assert.Empty(t, turns)
	}
	call, _ := h.mock.LastCall()
	assert.True(t, strings.Contains(call.System, "topic: unknown"))
}
