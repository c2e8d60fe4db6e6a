// Package tutor is the session controller. It owns the session, the
// message list and the pedagogy state, answers questions by streaming
// from a language model, and drives the speech queue, the image step,
// transcript persistence and the quiz.
//
// Every write that follows a blocking call re-checks that the session
// epoch and the message it targets are still current, so a slow
// collaborator never overwrites newer state.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vidyadost/vidyadost/internal/imagesearch"
	"github.com/vidyadost/vidyadost/internal/llm"
	"github.com/vidyadost/vidyadost/internal/logger"
	"github.com/vidyadost/vidyadost/internal/pedagogy"
	"github.com/vidyadost/vidyadost/internal/quiz"
	"github.com/vidyadost/vidyadost/internal/signals"
	"github.com/vidyadost/vidyadost/internal/store"
	"github.com/vidyadost/vidyadost/internal/transcript"
)

// Speaker plays finalized answers. speech.Queue implements it.
type Speaker interface {
	Enqueue(text, messageID string)
	Stop()
}

// ResultStore keeps finished quiz scores. store.QuizResultRepo
// implements it.
type ResultStore interface {
	Save(ctx context.Context, rec store.QuizResultRecord) error
	Latest(ctx context.Context) (*store.QuizResultRecord, error)
}

// Deps are the controller's collaborators. Only Provider is required;
// a nil collaborator disables its step.
type Deps struct {
	Provider      llm.Provider
	Detector      *signals.Detector
	Transcripts   transcript.Store
	Images        imagesearch.Searcher
	Speaker       Speaker
	QuizGenerator quiz.Generator
	Results       ResultStore
	Log           *logger.Logger
}

// Options tune the controller.
type Options struct {
	Profile            Profile
	AltLanguageDefault string
	// HistoryTurns is how many prior turns go into each answer request.
	HistoryTurns int
	// FinishDelay is how long a finished quiz stays visible before the
	// session ends.
	FinishDelay    time.Duration
	HistoryTimeout time.Duration
	ImageTimeout   time.Duration
	QuizTimeout    time.Duration
}

type Controller struct {
	deps Deps
	opts Options
	log  *logger.Logger
	quiz *quiz.Flow
	now  func() time.Time

	mu            sync.Mutex
	epoch         uint64
	session       *Session
	messages      []Message
	currentID     string
	loadingID     string
	cancelAsk     context.CancelFunc
	ped           pedagogy.State
	pendingPrompt string
	image         *imagesearch.Image
	imageErr      string
	lastScore     *quiz.Result
	observer      func(Event)

	bg     sync.WaitGroup
	done   chan struct{}
	closed sync.Once
}

// New builds a controller with no active session.
func New(deps Deps, opts Options) *Controller {
	if deps.Provider == nil {
		deps.Provider = llm.Unavailable(errors.New("no provider"))
	}
	if deps.Detector == nil {
		deps.Detector = signals.NewDefaultDetector()
	}
	if opts.HistoryTurns < 0 {
		opts.HistoryTurns = 0
	}
	c := &Controller{
		deps: deps,
		opts: opts,
		log:  logger.OrNop(deps.Log),
		now:  time.Now,
		ped:  pedagogy.NewState(),
		done: make(chan struct{}),
	}
	c.quiz = quiz.NewFlow(deps.QuizGenerator, c.log, quiz.Hooks{
		OnChange: func(quiz.Snapshot) { c.emit(Event{Type: EventQuiz}) },
		OnFinish: c.quizFinished,
	})
	return c
}

// SetObserver registers the function called after every state change.
// It runs on the goroutine that made the change, outside any lock.
func (c *Controller) SetObserver(fn func(Event)) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	fn := c.observer
	c.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	q := c.quiz.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Messages:      append([]Message(nil), c.messages...),
		CurrentID:     c.currentID,
		Loading:       c.loadingID != "",
		Pedagogy:      c.ped,
		PendingPrompt: c.pendingPrompt,
		ImageError:    c.imageErr,
		Quiz:          q,
	}
	if c.session != nil {
		sess := *c.session
		s.Session = &sess
	}
	if c.image != nil {
		img := *c.image
		s.Image = &img
	}
	if c.lastScore != nil {
		r := *c.lastScore
		s.LastScore = &r
	}
	return s
}

// StartSession replaces the active session, resets all per-session state
// and restores the persisted transcript. A failed restore is logged and
// returned; the session stays active with an empty history.
func (c *Controller) StartSession(ctx context.Context, sess Session) error {
	if sess.Key == "" {
		s, err := NewSession(sess.Grade, sess.Subject, sess.Unit, sess.Topic)
		if err != nil {
			return err
		}
		sess = s
	}
	c.stopSpeaking()

	c.mu.Lock()
	c.resetLocked()
	c.session = &sess
	c.pendingPrompt = sess.LessonPrompt()
	epoch := c.epoch
	c.mu.Unlock()
	// After the epoch bump: a quiz start racing with this either sees the
	// new epoch and refuses, or is already loading and gets discarded.
	c.quiz.Reset()

	c.log.Info("session started", "session_key", sess.Key, "topic", sess.Topic)
	c.emit(Event{Type: EventSession})

	if c.deps.Transcripts == nil {
		return nil
	}
	lctx, cancel := withTimeout(ctx, c.opts.HistoryTimeout)
	defer cancel()
	turns, err := c.deps.Transcripts.Load(lctx, sess.Key)
	if err != nil {
		c.log.Warn("load history failed", "session_key", sess.Key, "error", err)
		return fmt.Errorf("load history: %w", err)
	}

	restored := make([]Message, 0, len(turns))
	for i, t := range turns {
		ts := time.UnixMilli(t.TS)
		restored = append(restored, Message{
			ID:           fmt.Sprintf("history-%d-%d", t.TS, i),
			Question:     t.User,
			Answer:       t.Assistant,
			DisplayReady: true,
			CreatedAt:    ts,
		})
	}
	sort.SliceStable(restored, func(i, j int) bool { return restored[i].CreatedAt.Before(restored[j].CreatedAt) })

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.log.Debug("discarding history for a replaced session", "session_key", sess.Key)
		return nil
	}
	c.messages = append(restored, c.messages...)
	c.mu.Unlock()

	c.emit(Event{Type: EventHistory})
	return nil
}

// EndSession returns to the neutral dashboard state. The last quiz score
// is kept.
func (c *Controller) EndSession() {
	c.stopSpeaking()

	c.mu.Lock()
	had := c.session != nil
	c.resetLocked()
	c.mu.Unlock()
	c.quiz.Reset()

	if had {
		c.log.Info("session ended")
	}
	c.emit(Event{Type: EventSession})
}

// resetLocked clears every per-session field and invalidates in-flight
// work by bumping the epoch.
func (c *Controller) resetLocked() {
	c.epoch++
	if c.cancelAsk != nil {
		c.cancelAsk()
		c.cancelAsk = nil
	}
	c.session = nil
	c.messages = nil
	c.currentID = ""
	c.loadingID = ""
	c.ped.Reset()
	c.pendingPrompt = ""
	c.image = nil
	c.imageErr = ""
}

// ConsumePendingLessonPrompt returns the lesson prompt queued by
// StartSession exactly once.
func (c *Controller) ConsumePendingLessonPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pendingPrompt
	c.pendingPrompt = ""
	return p
}

// SetLearningStyle forces a learning style from outside the pedagogy
// rules.
func (c *Controller) SetLearningStyle(style pedagogy.Style) error {
	c.mu.Lock()
	err := c.ped.ForceStyle(style)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.emit(Event{Type: EventSession})
	return nil
}

func (c *Controller) stopSpeaking() {
	if c.deps.Speaker != nil {
		c.deps.Speaker.Stop()
	}
}

// askState is what Ask captured before its first blocking call.
type askState struct {
	epoch    uint64
	id       string
	question string
	session  *Session
	pc       promptContext
	history  []Turn
	trigger  bool
}

// Ask answers question. Playback of the previous answer stops first and
// any answer still streaming is superseded. The returned message is the
// final state of this exchange; on a collaborator failure it carries
// the apology text and the error is returned alongside it.
func (c *Controller) Ask(ctx context.Context, question string) (Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Message{}, ErrEmptyQuestion
	}
	c.stopSpeaking()

	sig := c.deps.Detector.Detect(question)
	quizActive := c.quiz.Active()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, tr := c.beginAsk(question, sig, quizActive, cancel)
	defer c.clearLoading(st.id)
	if st.trigger {
		// Runs after the answer is final so the quiz covers it, and only
		// while the session that asked is still the current one.
		defer c.startQuizAsync(ctx, st.epoch)
	}

	c.log.Debug("ask",
		"message_id", st.id,
		"style", st.pc.Style.String(),
		"alt_language", st.pc.AltLanguage,
		"miss", sig.Miss,
		"comprehension", sig.Comprehension,
	)
	if tr.ForcedImageMode {
		c.log.Info("switching to image-assisted style after repeated misses", "message_id", st.id)
	}
	c.emit(Event{Type: EventMessage, MessageID: st.id})

	lctx := llm.WithPurpose(ctx, llm.PurposeAnswer)
	if st.session != nil {
		lctx = llm.WithSession(lctx, st.session.Key)
	}
	var buf strings.Builder
	resp, err := c.deps.Provider.Stream(lctx, buildRequest(st.pc, st.history, question), func(delta string) error {
		buf.WriteString(delta)
		if !c.updateMessage(st, visibleText(buf.String())) {
			return ErrSuperseded
		}
		c.emit(Event{Type: EventMessage, MessageID: st.id})
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSuperseded) || (ctx.Err() != nil && !c.isLatest(st)) {
			cleaned, _ := ExtractDirective(buf.String())
			msg, _ := c.finalize(st, cleaned, "", true)
			return msg, ErrSuperseded
		}
		c.log.Warn("answer stream failed", "message_id", st.id, "error", err)
		msg, _ := c.finalize(st, Apology, "", true)
		return msg, fmt.Errorf("answer: %w", err)
	}

	text := buf.String()
	if resp != nil && resp.Text != "" {
		text = resp.Text
	}
	cleaned, keyword := ExtractDirective(text)

	final := cleaned
	if c.wantsImage(st) {
		final = joinParagraphs(cleaned, c.imageStep(ctx, st, keyword))
	}

	msg, ok := c.finalize(st, final, keyword, false)
	if !ok {
		return msg, ErrSuperseded
	}

	if c.deps.Speaker != nil && final != "" && c.isLatest(st) {
		c.deps.Speaker.Enqueue(final, st.id)
	}
	c.persist(ctx, st, final)
	return msg, nil
}

// beginAsk applies the pedagogy rules and appends the pending message.
func (c *Controller) beginAsk(question string, sig signals.Signals, quizActive bool, cancel context.CancelFunc) (askState, pedagogy.Transition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tr := c.ped.Apply(sig, quizActive)
	if c.cancelAsk != nil {
		c.cancelAsk()
	}
	c.cancelAsk = cancel

	st := askState{
		epoch:    c.epoch,
		id:       uuid.Must(uuid.NewV7()).String(),
		question: question,
		session:  c.session,
		history:  c.historyLocked(c.opts.HistoryTurns),
		trigger:  tr.TriggerQuiz,
	}
	st.pc = promptContext{
		Profile:     c.opts.Profile,
		Session:     c.session,
		Style:       c.ped.Style,
		AltLanguage: pedagogy.AltLanguage(c.ped.UseAltLanguage, c.opts.Profile.SecondLanguage, c.opts.AltLanguageDefault),
	}

	c.messages = append(c.messages, Message{ID: st.id, Question: question, CreatedAt: c.now()})
	c.currentID = st.id
	c.loadingID = st.id
	c.image = nil
	c.imageErr = ""
	return st, tr
}

// historyLocked returns the last n completed turns, oldest first. n <= 0
// returns all of them.
func (c *Controller) historyLocked(n int) []Turn {
	var done []Message
	for _, m := range c.messages {
		if m.isTurn() {
			done = append(done, m)
		}
	}
	sort.SliceStable(done, func(i, j int) bool { return done[i].CreatedAt.Before(done[j].CreatedAt) })
	if n > 0 && len(done) > n {
		done = done[len(done)-n:]
	}
	turns := make([]Turn, len(done))
	for i, m := range done {
		turns[i] = Turn{User: m.Question, Assistant: m.Answer}
	}
	return turns
}

func (c *Controller) indexLocked(st askState) int {
	if c.epoch != st.epoch {
		return -1
	}
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == st.id {
			return i
		}
	}
	return -1
}

func (c *Controller) isLatest(st askState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexLocked(st) >= 0 && c.currentID == st.id
}

// updateMessage publishes partial text. It reports false once the
// message is gone or a newer question took over.
func (c *Controller) updateMessage(st askState, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(st)
	if i < 0 || c.currentID != st.id {
		return false
	}
	c.messages[i].Answer = text
	return true
}

// finalize writes the final answer and flips DisplayReady.
func (c *Controller) finalize(st askState, text, keyword string, failed bool) (Message, bool) {
	c.mu.Lock()
	i := c.indexLocked(st)
	if i < 0 {
		c.mu.Unlock()
		return Message{ID: st.id, Question: st.question, Answer: text, DisplayReady: true, Failed: failed}, false
	}
	m := &c.messages[i]
	m.Answer = text
	m.DisplayReady = true
	m.Failed = failed
	m.ImageKeyword = keyword
	msg := *m
	c.mu.Unlock()

	c.emit(Event{Type: EventMessage, MessageID: st.id})
	return msg, true
}

func (c *Controller) clearLoading(id string) {
	c.mu.Lock()
	cleared := c.loadingID == id
	if cleared {
		c.loadingID = ""
		c.cancelAsk = nil
	}
	c.mu.Unlock()
	if cleared {
		c.emit(Event{Type: EventMessage, MessageID: id})
	}
}

func (c *Controller) wantsImage(st askState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexLocked(st) >= 0 && c.ped.WantsImage()
}

// imageStep fetches at most one image per session and returns the notice
// appended to the answer.
func (c *Controller) imageStep(ctx context.Context, st askState, keyword string) string {
	var topic string
	if st.session != nil {
		topic = st.session.Topic
	}
	label := firstNonEmpty(keyword, topic, "the concept")

	var img *imagesearch.Image
	var err error
	if c.deps.Images == nil {
		err = errors.New("image search not configured")
	} else {
		ictx, cancel := withTimeout(ctx, c.opts.ImageTimeout)
		img, err = c.deps.Images.Search(ictx, imageQuery(firstNonEmpty(keyword, topic, st.question), st.session))
		cancel()
	}

	c.mu.Lock()
	if c.indexLocked(st) < 0 {
		c.mu.Unlock()
		return ""
	}
	switch {
	case err != nil:
		c.imageErr = err.Error()
	case img == nil:
		c.imageErr = "No image found"
	case c.ped.ImageShownOnce:
		// Another answer already showed this session's image.
		img = nil
	default:
		c.ped.MarkImageShown()
		c.image = img
		c.imageErr = ""
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("image search failed", "message_id", st.id, "error", err)
	}
	c.emit(Event{Type: EventImage, MessageID: st.id})

	if img == nil {
		return imageNotice(label, "")
	}
	return imageNotice(label, img.URL)
}

func (c *Controller) persist(ctx context.Context, st askState, answer string) {
	if c.deps.Transcripts == nil || st.session == nil || answer == "" {
		return
	}
	pctx, cancel := withTimeout(context.WithoutCancel(ctx), c.opts.HistoryTimeout)
	defer cancel()
	if _, err := c.deps.Transcripts.Append(pctx, st.session.Key, st.question, answer); err != nil {
		c.log.Warn("save history failed", "session_key", st.session.Key, "message_id", st.id, "error", err)
	}
}

// quizRequestLocked gathers every completed turn of the session.
func (c *Controller) quizRequestLocked() quiz.Request {
	var turns []quiz.Turn
	for _, t := range c.historyLocked(0) {
		turns = append(turns, quiz.Turn{User: t.User, Assistant: t.Assistant})
	}
	req := quiz.Request{Turns: turns, Age: c.opts.Profile.Age}
	if c.session != nil {
		req.Grade, req.Subject, req.Topic = c.session.Grade, c.session.Subject, c.session.Topic
	}
	return req
}

// StartQuiz generates a quiz from the whole session and blocks until the
// first question is available. A generation failure still leaves a
// playable placeholder quiz; the error is returned for display.
func (c *Controller) StartQuiz(ctx context.Context) error {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	return c.startQuiz(ctx, epoch)
}

// startQuiz starts a quiz for the session current at epoch. It returns
// ErrSuperseded when the session changed before the quiz could begin.
func (c *Controller) startQuiz(ctx context.Context, epoch uint64) error {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if c.session == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	req := c.quizRequestLocked()
	key := c.session.Key
	c.mu.Unlock()
	ctx = llm.WithSession(ctx, key)

	qctx, cancel := withTimeout(ctx, c.opts.QuizTimeout)
	defer cancel()
	err := c.quiz.StartIf(qctx, req, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.epoch == epoch
	})
	switch {
	case errors.Is(err, quiz.ErrNotWanted):
		c.log.Debug("quiz start dropped for a replaced session", "session_key", key)
		return ErrSuperseded
	case err != nil && !errors.Is(err, quiz.ErrQuizActive):
		c.log.Warn("quiz generation failed", "topic", req.Topic, "error", err)
	}
	return err
}

func (c *Controller) startQuizAsync(ctx context.Context, epoch uint64) {
	ctx = context.WithoutCancel(ctx)
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		_ = c.startQuiz(ctx, epoch)
	}()
}

// AnswerQuiz records a choice for the current quiz question.
func (c *Controller) AnswerQuiz(choice int) (quiz.Snapshot, error) {
	return c.quiz.Answer(choice)
}

// quizFinished records the score and ends the session after the finish
// delay, unless the session changed in the meantime.
func (c *Controller) quizFinished(r quiz.Result) {
	c.mu.Lock()
	c.lastScore = &r
	epoch := c.epoch
	var sess Session
	if c.session != nil {
		sess = *c.session
	}
	c.mu.Unlock()

	c.log.Info("quiz finished", "session_key", sess.Key, "score", r.Score, "total", r.Total)
	c.emit(Event{Type: EventScore})

	if c.deps.Results != nil {
		ctx, cancel := withTimeout(context.Background(), c.opts.HistoryTimeout)
		err := c.deps.Results.Save(ctx, store.QuizResultRecord{
			SessionKey: sess.Key,
			Topic:      sess.Topic,
			Score:      r.Score,
			Total:      r.Total,
			Timestamp:  r.Timestamp,
		})
		cancel()
		if err != nil {
			c.log.Warn("save quiz result failed", "session_key", sess.Key, "error", err)
		}
	}

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		t := time.NewTimer(c.opts.FinishDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-c.done:
			return
		}
		c.mu.Lock()
		same := c.epoch == epoch
		c.mu.Unlock()
		if same {
			c.EndSession()
		}
	}()
}

// RestoreLastScore loads the most recent quiz score from the result
// store.
func (c *Controller) RestoreLastScore(ctx context.Context) error {
	if c.deps.Results == nil {
		return nil
	}
	rec, err := c.deps.Results.Latest(ctx)
	if err != nil {
		return fmt.Errorf("load last score: %w", err)
	}
	if rec == nil {
		return nil
	}
	c.mu.Lock()
	c.lastScore = &quiz.Result{Score: rec.Score, Total: rec.Total, Timestamp: rec.Timestamp}
	c.mu.Unlock()
	c.emit(Event{Type: EventScore})
	return nil
}

// Wait blocks until background work (quiz generation, the post-quiz
// session end) has finished.
func (c *Controller) Wait() {
	c.bg.Wait()
}

// Close stops speech, abandons pending timers and waits for background
// work.
func (c *Controller) Close() {
	c.closed.Do(func() {
		close(c.done)
		c.stopSpeaking()
		c.mu.Lock()
		if c.cancelAsk != nil {
			c.cancelAsk()
		}
		c.mu.Unlock()
	})
	c.bg.Wait()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func joinParagraphs(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
