// Package server exposes the transcript store and quiz scores over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/vidyadost/vidyadost/internal/logger"
	"github.com/vidyadost/vidyadost/internal/store"
	"github.com/vidyadost/vidyadost/internal/transcript"
)

// Results lists finished quiz scores. store.QuizResultRepo implements it.
type Results interface {
	Latest(ctx context.Context) (*store.QuizResultRecord, error)
	List(ctx context.Context, limit int) ([]store.QuizResultRecord, error)
}

type Server struct {
	history transcript.Store
	results Results
	log     *logger.Logger
	router  *gin.Engine
}

// New builds the router. results may be nil, in which case the quiz
// routes report 404.
func New(history transcript.Store, results Results, log *logger.Logger) *Server {
	s := &Server{history: history, results: results, log: logger.OrNop(log).With("component", "server")}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	api := r.Group("/api")
	api.GET("/history", s.getHistory)
	api.POST("/history", s.postHistory)
	api.GET("/quiz/last", s.lastQuiz)
	api.GET("/quiz/results", s.listQuiz)

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

type historyResponse struct {
	History []transcript.Turn `json:"history"`
}

type appendRequest struct {
	SessionKey string `json:"sessionKey"`
	User       string `json:"user"`
	Assistant  string `json:"assistant"`
}

type appendResponse struct {
	OK   bool            `json:"ok"`
	Turn transcript.Turn `json:"turn"`
}

// GET /api/history?sessionKey=...
func (s *Server) getHistory(c *gin.Context) {
	key := c.Query("sessionKey")
	if strings.TrimSpace(key) == "" {
		c.String(http.StatusBadRequest, "Missing sessionKey")
		return
	}
	turns, err := s.history.Load(c.Request.Context(), key)
	if err != nil {
		s.log.Error("load history failed", "session_key", key, "error", err)
		c.String(http.StatusInternalServerError, "Failed to load history")
		return
	}
	if turns == nil {
		turns = []transcript.Turn{}
	}
	c.JSON(http.StatusOK, historyResponse{History: turns})
}

// POST /api/history {sessionKey, user, assistant}
func (s *Server) postHistory(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid JSON")
		return
	}
	var req appendRequest
	if err := sonic.Unmarshal(raw, &req); err != nil {
		c.String(http.StatusBadRequest, "Invalid JSON")
		return
	}
	turn, err := s.history.Append(c.Request.Context(), req.SessionKey, req.User, req.Assistant)
	if errors.Is(err, transcript.ErrMissingFields) {
		c.String(http.StatusBadRequest, "Missing fields")
		return
	}
	if err != nil {
		s.log.Error("append history failed", "session_key", req.SessionKey, "error", err)
		c.String(http.StatusInternalServerError, "Failed to save history")
		return
	}
	c.JSON(http.StatusOK, appendResponse{OK: true, Turn: turn})
}

type quizResult struct {
	SessionKey string    `json:"sessionKey"`
	Topic      string    `json:"topic"`
	Score      int       `json:"score"`
	Total      int       `json:"total"`
	Timestamp  time.Time `json:"timestamp"`
}

func toQuizResult(r store.QuizResultRecord) quizResult {
	return quizResult{SessionKey: r.SessionKey, Topic: r.Topic, Score: r.Score, Total: r.Total, Timestamp: r.Timestamp}
}

// GET /api/quiz/last
func (s *Server) lastQuiz(c *gin.Context) {
	if s.results == nil {
		c.Status(http.StatusNotFound)
		return
	}
	rec, err := s.results.Latest(c.Request.Context())
	if err != nil {
		s.log.Error("load last quiz failed", "error", err)
		c.String(http.StatusInternalServerError, "Failed to load quiz result")
		return
	}
	if rec == nil {
		c.JSON(http.StatusOK, gin.H{"result": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": toQuizResult(*rec)})
}

// GET /api/quiz/results?limit=N
func (s *Server) listQuiz(c *gin.Context) {
	if s.results == nil {
		c.Status(http.StatusNotFound)
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.String(http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}
	recs, err := s.results.List(c.Request.Context(), limit)
	if err != nil {
		s.log.Error("list quiz results failed", "error", err)
		c.String(http.StatusInternalServerError, "Failed to load quiz results")
		return
	}
	out := make([]quizResult, 0, len(recs))
	for _, r := range recs {
		out = append(out, toQuizResult(r))
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}
