package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidyadost/vidyadost/internal/store"
	"github.com/vidyadost/vidyadost/internal/transcript"
)

const sessionKey = "6th|Science|Biology|Photosynthesis"

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hist, err := transcript.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return New(hist, st.QuizResultRepo(), nil), st
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHistory_RoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	target := "/api/history?sessionKey=" + strings.ReplaceAll(sessionKey, "|", "%7C")

	rec := do(t, s, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"history":[]}`, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/history",
		`{"sessionKey":"`+sessionKey+`","user":"What is photosynthesis?","assistant":"Plants make food."}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var ack appendResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &ack))
	assert.True(t, ack.OK)
	assert.NotZero(t, ack.Turn.TS)

	rec = do(t, s, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got historyResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.History, 1)
	assert.Equal(t, "What is photosynthesis?", got.History[0].User)
	assert.Equal(t, "Plants make food.", got.History[0].Assistant)
}

func TestHistory_BadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/history", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing sessionKey", rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/history", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON", rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/history", `{"sessionKey":"k","user":"q"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing fields", rec.Body.String())
}

func TestHistory_HTTPStoreClient(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	client := transcript.NewHTTPStore(srv.URL, time.Second)
	ctx := context.Background()
	_, err := client.Append(ctx, sessionKey, "q1", "a1")
	require.NoError(t, err)
	_, err = client.Append(ctx, sessionKey, "q2", "a2")
	require.NoError(t, err)

	turns, err := client.Load(ctx, sessionKey)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "q1", turns[0].User)
	assert.Equal(t, "a2", turns[1].Assistant)
}

func TestQuizRoutes(t *testing.T) {
	s, st := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/quiz/last", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":null}`, rec.Body.String())

	ctx := context.Background()
	repo := st.QuizResultRepo()
	require.NoError(t, repo.Save(ctx, store.QuizResultRecord{SessionKey: sessionKey, Topic: "Photosynthesis", Score: 2, Total: 4}))
	require.NoError(t, repo.Save(ctx, store.QuizResultRecord{SessionKey: sessionKey, Topic: "Photosynthesis", Score: 4, Total: 4}))

	rec = do(t, s, http.MethodGet, "/api/quiz/last", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var last struct {
		Result quizResult `json:"result"`
	}
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &last))
	assert.Equal(t, 4, last.Result.Score)
	assert.Equal(t, "Photosynthesis", last.Result.Topic)

	rec = do(t, s, http.MethodGet, "/api/quiz/results?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Results []quizResult `json:"results"`
	}
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Results, 1)

	rec = do(t, s, http.MethodGet, "/api/quiz/results?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	s := New(nil, nil, nil)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/quiz/last", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
