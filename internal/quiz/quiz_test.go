package quiz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidyadost/vidyadost/internal/llm"
)

func intp(i int) *int { return &i }

func TestClean_RepairsAnswerIndexFromText(t *testing.T) {
	raw := []RawQuestion{{
		Question:      "Which gas do plants take in?",
		Options:       []string{"Oxygen", "Nitrogen", "Carbon dioxide", "Helium"},
		CorrectAnswer: "Carbon dioxide",
	}}
	qs, err := Clean(raw, "Photosynthesis")
	require.NoError(t, err)
	require.Len(t, qs, Size)
	assert.Equal(t, 2, qs[0].AnswerIndex)
	// the rest is padded with placeholders
	assert.Equal(t, Placeholders("Photosynthesis")[1:], qs[1:])
}

func TestClean_Rules(t *testing.T) {
	tests := []struct {
		name    string
		raw     RawQuestion
		wantOK  bool
		wantIdx int
	}{
		{"valid index kept", RawQuestion{Question: "q", Options: []string{"a", "b", "c", "d"}, AnswerIndex: intp(3)}, true, 3},
		{"out of range index falls back to text", RawQuestion{Question: "q", Options: []string{"a", "b", "c", "d"}, AnswerIndex: intp(7), CorrectAnswer: "b"}, true, 1},
		{"case folded text", RawQuestion{Question: "q", Options: []string{"Sun", "Moon", "Star", "Sky"}, CorrectAnswer: "moon"}, true, 1},
		{"letter answer", RawQuestion{Question: "q", Options: []string{"a1", "b1", "c1", "d1"}, CorrectAnswer: "D)"}, true, 3},
		{"unknown answer defaults to zero", RawQuestion{Question: "q", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "zzz"}, true, 0},
		{"extra options truncated", RawQuestion{Question: "q", Options: []string{"a", "b", "c", "d", "e"}, AnswerIndex: intp(1)}, true, 1},
		{"too few options", RawQuestion{Question: "q", Options: []string{"a", "b", "c"}}, false, 0},
		{"blank options ignored", RawQuestion{Question: "q", Options: []string{"a", " ", "c", "d"}}, false, 0},
		{"empty prompt", RawQuestion{Question: "  ", Options: []string{"a", "b", "c", "d"}}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, ok := cleanOne(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantIdx, q.AnswerIndex)
				assert.Len(t, q.Options, Size)
			}
		})
	}
}

func TestClean_NothingUsable(t *testing.T) {
	_, err := Clean([]RawQuestion{{Question: "q"}}, "Soil")
	assert.ErrorIs(t, err, ErrEmptyQuiz)
}

func TestClean_KeepsAtMostFour(t *testing.T) {
	var raw []RawQuestion
	for i := 0; i < 6; i++ {
		raw = append(raw, RawQuestion{Question: "q", Options: []string{"a", "b", "c", "d"}, AnswerIndex: intp(i % Size)})
	}
	qs, err := Clean(raw, "")
	require.NoError(t, err)
	assert.Len(t, qs, Size)
}

func TestDecodeQuestions(t *testing.T) {
	payload := `Sure! Here is your quiz:
{"questions":[
  {"question":"What do roots absorb?","options":["Water","Light","Air","Sound"],"answerIndex":0},
  {"question":"Leaves are usually?","options":["Blue","Green","Red","White"],"correct_answer":"Green"},
  {"question":"Plants make?","options":["Food","Metal","Glass","Stone"],"answer":"0"}
]}
Good luck!`
	raw, err := DecodeQuestions([]byte(payload))
	require.NoError(t, err)
	require.Len(t, raw, 3)

	require.NotNil(t, raw[0].AnswerIndex)
	assert.Equal(t, 0, *raw[0].AnswerIndex)
	assert.Nil(t, raw[1].AnswerIndex)
	assert.Equal(t, "Green", raw[1].CorrectAnswer)
	// a string "answer" is answer text, not an index
	assert.Nil(t, raw[2].AnswerIndex)
	assert.Equal(t, "0", raw[2].CorrectAnswer)

	_, err = DecodeQuestions([]byte(`{"questions":[]}`))
	assert.ErrorIs(t, err, ErrEmptyQuiz)
	_, err = DecodeQuestions([]byte(`no json here`))
	assert.Error(t, err)
}

func TestPlaceholders(t *testing.T) {
	qs := Placeholders("Magnets")
	require.Len(t, qs, Size)
	for i, q := range qs {
		assert.Equal(t, i, q.AnswerIndex)
		assert.Contains(t, q.Question, "Magnets")
		assert.Len(t, q.Options, Size)
	}
	assert.Contains(t, Placeholders("")[0].Question, "this topic")
}

type stubGenerator struct {
	raw  []RawQuestion
	err  error
	wait chan struct{}
}

func (s *stubGenerator) Generate(ctx context.Context, _ Request) ([]RawQuestion, error) {
	if s.wait != nil {
		select {
		case <-s.wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.raw, s.err
}

func fourQuestions() []RawQuestion {
	out := make([]RawQuestion, Size)
	for i := range out {
		out[i] = RawQuestion{Question: "q", Options: []string{"a", "b", "c", "d"}, AnswerIndex: intp(i)}
	}
	return out
}

func TestFlow_FullRun(t *testing.T) {
	var finished []Result
	var statuses []Status
	f := NewFlow(&stubGenerator{raw: fourQuestions()}, nil, Hooks{
		OnChange: func(s Snapshot) { statuses = append(statuses, s.Status) },
		OnFinish: func(r Result) { finished = append(finished, r) },
	})
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return fixed }

	require.NoError(t, f.Start(context.Background(), Request{Topic: "Soil"}))
	assert.True(t, f.Active())

	// correct, wrong, correct, wrong
	for i, choice := range []int{0, 0, 2, 0} {
		snap, err := f.Answer(choice)
		require.NoError(t, err, "question %d", i)
		assert.Equal(t, i+1, len(snap.Choices))
	}

	snap := f.Snapshot()
	assert.Equal(t, StatusFinished, snap.Status)
	require.NotNil(t, snap.Result)
	assert.Equal(t, Result{Score: 2, Total: Size, Timestamp: fixed}, *snap.Result)
	require.Len(t, finished, 1)
	assert.Equal(t, 2, finished[0].Score)
	assert.Equal(t, []Status{StatusLoading, StatusInProgress, StatusInProgress, StatusInProgress, StatusInProgress, StatusFinished}, statuses)

	_, err := f.Answer(0)
	assert.ErrorIs(t, err, ErrNotInProgress)

	f.Reset()
	assert.False(t, f.Active())
	assert.Equal(t, StatusIdle, f.Snapshot().Status)
}

func TestFlow_PlaceholdersOnFailure(t *testing.T) {
	f := NewFlow(&stubGenerator{err: errors.New("model offline")}, nil, Hooks{})
	err := f.Start(context.Background(), Request{Topic: "Rain"})
	require.Error(t, err)

	snap := f.Snapshot()
	assert.Equal(t, StatusInProgress, snap.Status)
	assert.Equal(t, Placeholders("Rain"), snap.Questions)
	assert.Contains(t, snap.Error, "model offline")

	q, ok := snap.CurrentQuestion()
	require.True(t, ok)
	assert.Contains(t, q.Question, "Rain")
}

func TestFlow_Errors(t *testing.T) {
	f := NewFlow(&stubGenerator{raw: fourQuestions()}, nil, Hooks{})

	_, err := f.Answer(0)
	assert.ErrorIs(t, err, ErrNotInProgress)

	require.NoError(t, f.Start(context.Background(), Request{}))
	assert.ErrorIs(t, f.Start(context.Background(), Request{}), ErrQuizActive)

	_, err = f.Answer(-1)
	assert.ErrorIs(t, err, ErrInvalidChoice)
	_, err = f.Answer(Size)
	assert.ErrorIs(t, err, ErrInvalidChoice)
	assert.Equal(t, 0, f.Snapshot().Current)
}

func TestFlow_ResetDiscardsInFlightGeneration(t *testing.T) {
	gen := &stubGenerator{raw: fourQuestions(), wait: make(chan struct{})}
	f := NewFlow(gen, nil, Hooks{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, f.Start(context.Background(), Request{}))
	}()

	require.Eventually(t, func() bool { return f.Snapshot().Status == StatusLoading }, time.Second, time.Millisecond)
	f.Reset()
	close(gen.wait)
	wg.Wait()

	snap := f.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Nil(t, snap.Questions)
}

func TestLLMGenerator(t *testing.T) {
	body := `{"questions":[
		{"question":"What gives plants energy?","options":["Sunlight","Rocks","Plastic","Noise"],"answerIndex":0},
		{"question":"Where does photosynthesis happen?","options":["Roots","Stem","Leaves","Flowers"],"correct_answer":"Leaves"},
		{"question":"Which gas is released?","options":["Oxygen","Smoke","Steam","Dust"],"answerIndex":0},
		{"question":"Plants need?","options":["Water","Sand","Ice","Glue"],"answerIndex":0}
	]}`
	mock := llm.NewMockProvider(llm.MockResponse{Content: []byte(body)})
	gen := NewLLMGenerator(mock, nil)

	raw, err := gen.Generate(context.Background(), Request{
		Turns:   []Turn{{User: "what is photosynthesis", Assistant: "Plants make food from light."}},
		Age:     11,
		Grade:   "6th",
		Subject: "Science",
		Topic:   "Photosynthesis",
	})
	require.NoError(t, err)
	qs, err := Clean(raw, "Photosynthesis")
	require.NoError(t, err)
	assert.Equal(t, 2, qs[1].AnswerIndex)

	call, ok := mock.LastCall()
	require.True(t, ok)
	require.Len(t, call.Messages, 3)
	assert.Equal(t, llm.RoleAssistant, call.Messages[1].Role)
	assert.Equal(t, "Create 4 MCQ questions for subject=Science, topic=Photosynthesis, grade=6th, age=11.", call.Messages[2].Content)
	assert.InDelta(t, 0.7, call.Temperature, 1e-9)
	require.NotNil(t, call.Schema)
	assert.Equal(t, "comprehension-quiz", call.Schema.Name)
}

type invalidProvider struct{ llm.Provider }

func (invalidProvider) Generate(context.Context, llm.Request) (*llm.Response, error) {
	return nil, &llm.ErrInvalidResponse{
		Content: []byte(`{"questions":[{"question":"Q","options":["a","b","c","d"],"correct_answer":"c"}]}`),
		Err:     errors.New("missing answerIndex"),
	}
}

func TestLLMGenerator_SalvagesInvalidResponse(t *testing.T) {
	raw, err := NewLLMGenerator(invalidProvider{}, nil).Generate(context.Background(), Request{})
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, "c", raw[0].CorrectAnswer)
}

func TestLLMGenerator_ProviderError(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}})
	_, err := NewLLMGenerator(mock, nil).Generate(context.Background(), Request{})
	var unavailable *llm.ErrProviderUnavailable
	assert.ErrorAs(t, err, &unavailable)
}

func TestFlow_StartIfNotWantedStaysIdle(t *testing.T) {
	f := NewFlow(&stubGenerator{raw: fourQuestions()}, nil, Hooks{})

	err := f.StartIf(context.Background(), Request{}, func() bool { return false })
	assert.ErrorIs(t, err, ErrNotWanted)
	assert.Equal(t, StatusIdle, f.Snapshot().Status)

	require.NoError(t, f.StartIf(context.Background(), Request{}, func() bool { return true }))
	assert.Equal(t, StatusInProgress, f.Snapshot().Status)
}
