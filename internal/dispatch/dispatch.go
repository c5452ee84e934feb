// Package dispatch is the tutor's decision procedure. A request either
// names a lesson to teach, in which case the lesson text goes straight to
// the teach-lesson responder, or it is general chat, which the router
// classifies before the chosen responder answers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/emera/sattur/internal/apperr"
	"github.com/emera/sattur/internal/lessons"
	"github.com/emera/sattur/internal/llm"
	"github.com/emera/sattur/internal/metrics"
	"github.com/emera/sattur/internal/prompt"
	"github.com/emera/sattur/internal/responder"
	"github.com/emera/sattur/internal/router"
	"github.com/emera/sattur/internal/session"
)

// DefaultTimeout bounds a whole request, routing and generation included.
const DefaultTimeout = 120 * time.Second

// ErrStreamConsumed is yielded when a Reply's stream is iterated twice.
var ErrStreamConsumed = errors.New("reply stream already consumed")

// Request is one learner turn.
type Request struct {
	// SessionID scopes progression and conversation memory. Empty means a
	// stateless request: nothing is read from or written to the store.
	SessionID string

	Query    string
	Language string

	// PreviousQuery and PreviousResponse override the exchange remembered
	// for the session.
	PreviousQuery    *string
	PreviousResponse *string

	// LessonToTeach selects the forced-lesson path when set.
	LessonToTeach *int
}

// Reply is a dispatched request whose answer has not been generated yet.
type Reply struct {
	// Route is the responder producing the answer.
	Route responder.Name

	// Decision is the routing outcome; nil on the lesson path.
	Decision *router.Decision

	// Lesson is the lesson being taught; nil on the chat path.
	Lesson *lessons.Lesson

	// Stream yields the answer fragment by fragment. It is lazy and may be
	// iterated once. Session state is updated only after it ends without
	// error. Callers that stop early or never iterate must call Close.
	Stream iter.Seq2[string, error]

	release func()
}

// Close releases the request's deadline timer. It is safe to call more
// than once and after the stream finished.
func (r *Reply) Close() {
	if r.release != nil {
		r.release()
	}
}

// Answer is a fully generated reply.
type Answer struct {
	Text      string
	Route     responder.Name
	Confident bool
}

// Options are the collaborators of a Dispatcher. Responders and Router are
// built once at startup; when either is nil the chat pipeline is not ready.
type Options struct {
	Responders *responder.Set
	Router     *router.Router
	Lessons    *lessons.Catalog
	Sessions   session.Store

	// DefaultLanguage applies to chat requests without a language.
	DefaultLanguage string

	// EnforceUnlock rejects lessons beyond the session's unlocked lesson.
	EnforceUnlock bool

	// Timeout bounds each request. Default: DefaultTimeout.
	Timeout time.Duration

	// InitErr records why the pipeline failed to initialize, for health
	// reporting.
	InitErr error

	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// Dispatcher routes requests to responders. Its configuration is fixed at
// construction and it is safe for concurrent use.
type Dispatcher struct {
	responders *responder.Set
	router     *router.Router
	lessons    *lessons.Catalog
	sessions   session.Store

	defaultLanguage string
	enforceUnlock   bool
	timeout         time.Duration
	initErr         error

	metrics *metrics.Collector
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		responders:      opts.Responders,
		router:          opts.Router,
		lessons:         opts.Lessons,
		sessions:        opts.Sessions,
		defaultLanguage: opts.DefaultLanguage,
		enforceUnlock:   opts.EnforceUnlock,
		timeout:         opts.Timeout,
		initErr:         opts.InitErr,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.lessons == nil {
		d.lessons = lessons.NewCatalog("curriculum")
	}
	// A half-built pipeline is treated as no pipeline.
	if d.responders == nil || d.router == nil {
		d.responders, d.router = nil, nil
		if d.initErr == nil {
			d.initErr = errors.New("chat pipeline not configured")
		}
	}
	return d
}

// Ready reports whether the routed-chat pipeline initialized.
func (d *Dispatcher) Ready() bool {
	return d.responders != nil && d.router != nil
}

// Handle validates req, makes the routing decision when needed, and
// returns a Reply whose stream generates the answer. Errors carry an
// apperr kind.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (*Reply, error) {
	if req.LessonToTeach != nil {
		return d.handleLesson(ctx, req, *req.LessonToTeach)
	}
	return d.handleChat(ctx, req)
}

// Chat handles req and drains the answer into one string.
func (d *Dispatcher) Chat(ctx context.Context, req Request) (*Answer, error) {
	reply, err := d.Handle(ctx, req)
	if err != nil {
		return nil, err
	}
	defer reply.Close()

	var b strings.Builder
	for chunk, err := range reply.Stream {
		if err != nil {
			return nil, err
		}
		b.WriteString(chunk)
	}

	ans := &Answer{Text: b.String(), Route: reply.Route, Confident: true}
	if reply.Decision != nil {
		ans.Confident = reply.Decision.Confident
	}
	return ans, nil
}

func (d *Dispatcher) handleLesson(ctx context.Context, req Request, n int) (*Reply, error) {
	const op = "dispatch.lesson"

	language := strings.TrimSpace(req.Language)
	if language == "" {
		return nil, apperr.New(apperr.ErrInvalidRequest, op, "Language is required when teaching a lesson.")
	}
	lesson, err := d.lessons.Load(language, n)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: read lesson: %w", op, err)
	}

	if d.enforceUnlock && req.SessionID != "" && d.sessions != nil {
		st, err := d.sessions.Get(ctx, req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("%s: load session: %w", op, err)
		}
		if !st.Unlocked(n) {
			return nil, apperr.New(apperr.ErrInvalidRequest, op,
				fmt.Sprintf("Lesson %d is locked. Complete lesson %d first.", n, st.UnlockedLesson))
		}
	}

	teach, ok := d.responders.Get(responder.TeachLesson)
	if !ok {
		return nil, apperr.New(apperr.ErrServiceUnavailable, op, "Curriculum tutor is not available.")
	}

	d.logger.Info("teaching lesson",
		zap.String("session", req.SessionID),
		zap.String("language", language),
		zap.Int("lesson", n),
	)

	ctx, release := d.withTimeout(ctx, req.SessionID)
	src := teach.Stream(ctx, responder.Input{Language: language, Context: lesson.Content})
	return &Reply{
		Route:   responder.TeachLesson,
		Lesson:  lesson,
		release: release,
		Stream: d.finish(ctx, release, responder.TeachLesson, src, func(ctx context.Context, _ string) {
			d.completeLesson(ctx, req.SessionID, n)
		}),
	}, nil
}

func (d *Dispatcher) handleChat(ctx context.Context, req Request) (*Reply, error) {
	const op = "dispatch.chat"

	if !d.Ready() {
		return nil, apperr.Wrap(apperr.ErrServiceUnavailable, op,
			"Agent is not available or failed to initialize. Please check server logs and restart server.", d.initErr)
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperr.New(apperr.ErrInvalidRequest, op, "Query is required.")
	}
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = d.defaultLanguage
	}

	prevQ, prevA := d.previous(ctx, req)

	ctx, release := d.withTimeout(ctx, req.SessionID)
	decision := d.router.Route(ctx, query, language)
	d.metrics.ObserveRoute(string(decision.Route), decision.Confident)

	r, ok := d.responders.Get(decision.Route)
	if !ok {
		release()
		return nil, apperr.New(apperr.ErrServiceUnavailable, op,
			fmt.Sprintf("Responder %q is not available.", decision.Route))
	}

	d.logger.Info("routed chat",
		zap.String("session", req.SessionID),
		zap.String("route", string(decision.Route)),
		zap.Bool("confident", decision.Confident),
	)

	src := r.Stream(ctx, responder.Input{
		Language:         language,
		CurrentQuestion:  query,
		PreviousQuery:    prevQ,
		PreviousResponse: prevA,
	})
	return &Reply{
		Route:    decision.Route,
		Decision: &decision,
		release:  release,
		Stream: d.finish(ctx, release, decision.Route, src, func(ctx context.Context, answer string) {
			d.recordExchange(ctx, req.SessionID, query, answer)
		}),
	}, nil
}

// previous resolves the previous exchange: explicit request fields win,
// then the session's memory.
func (d *Dispatcher) previous(ctx context.Context, req Request) (string, string) {
	var q, a string
	if req.PreviousQuery != nil {
		q = *req.PreviousQuery
	}
	if req.PreviousResponse != nil {
		a = *req.PreviousResponse
	}
	if req.PreviousQuery != nil || req.PreviousResponse != nil || req.SessionID == "" || d.sessions == nil {
		return q, a
	}

	st, err := d.sessions.Get(ctx, req.SessionID)
	if err != nil {
		d.logger.Warn("load session for previous exchange", zap.String("session", req.SessionID), zap.Error(err))
		return "", ""
	}
	if st.Previous == nil {
		return "", ""
	}
	return st.Previous.Query, st.Previous.Response
}

func (d *Dispatcher) withTimeout(ctx context.Context, sessionID string) (context.Context, func()) {
	ctx = llm.WithSession(ctx, sessionID)
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	var once sync.Once
	return ctx, func() { once.Do(cancel) }
}

// finish wraps a responder stream: it enforces single use, maps errors to
// apperr kinds, records metrics, and runs onSuccess once the answer is
// complete and non-empty.
func (d *Dispatcher) finish(
	ctx context.Context,
	release func(),
	name responder.Name,
	src iter.Seq2[string, error],
	onSuccess func(ctx context.Context, answer string),
) iter.Seq2[string, error] {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield("", ErrStreamConsumed)
			return
		}
		defer release()

		start := time.Now()
		outcome := "ok"
		defer func() { d.metrics.ObserveResponse(string(name), outcome, time.Since(start)) }()

		var answer strings.Builder
		for chunk, err := range src {
			if err != nil {
				outcome = "error"
				err = mapStreamError(ctx, name, err)
				d.logger.Warn("responder failed", zap.String("responder", string(name)), zap.Error(err))
				yield("", err)
				return
			}
			answer.WriteString(chunk)
			if !yield(chunk, nil) {
				outcome = "cancelled"
				return
			}
		}

		if err := ctx.Err(); err != nil {
			outcome = "error"
			yield("", mapStreamError(ctx, name, err))
			return
		}
		if strings.TrimSpace(answer.String()) == "" {
			outcome = "error"
			yield("", apperr.New(apperr.ErrUpstreamFailure, "dispatch.stream", "The tutor returned an empty answer. Please try again."))
			return
		}

		// The request deadline must not cut off the state update.
		onSuccess(context.WithoutCancel(ctx), answer.String())
	}
}

func (d *Dispatcher) completeLesson(ctx context.Context, sessionID string, n int) {
	if sessionID == "" || d.sessions == nil {
		return
	}
	after, advanced, err := d.sessions.CompleteLesson(ctx, sessionID, n)
	if err != nil {
		d.logger.Error("complete lesson", zap.String("session", sessionID), zap.Int("lesson", n), zap.Error(err))
		return
	}
	if advanced {
		d.metrics.LessonAdvanced()
		d.logger.Info("lesson unlocked", zap.String("session", sessionID), zap.Int("unlocked", after.UnlockedLesson))
	}
}

func (d *Dispatcher) recordExchange(ctx context.Context, sessionID, query, answer string) {
	if sessionID == "" || d.sessions == nil {
		return
	}
	if err := d.sessions.RecordExchange(ctx, sessionID, query, answer); err != nil {
		d.logger.Error("record exchange", zap.String("session", sessionID), zap.Error(err))
	}
}

// mapStreamError gives a responder failure its apperr kind. Errors that
// already carry one pass through.
func mapStreamError(ctx context.Context, name responder.Name, err error) error {
	op := "dispatch." + string(name)

	var (
		ae   *apperr.Error
		open *llm.ErrCircuitOpen
	)
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, prompt.ErrMissingVariable):
		return apperr.Wrap(apperr.ErrInvalidRequest, op, "The request is missing a field this tutor needs.", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperr.Wrap(apperr.ErrUpstreamFailure, op, "The tutor took too long to answer. Please try again.",
			errors.Join(err, context.DeadlineExceeded))
	case errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.ErrUpstreamFailure, op, "The request was cancelled.", err)
	case errors.As(err, &open):
		return apperr.Wrap(apperr.ErrUpstreamFailure, op, "The language model is temporarily unavailable. Please try again shortly.", err)
	default:
		return apperr.Wrap(apperr.ErrUpstreamFailure, op, "The language model request failed. Please try again.", err)
	}
}

// Health describes the dispatcher's readiness.
type Health struct {
	Ready            bool
	Reason           string
	Responders       []responder.Name
	Retrieval        bool
	RetrievalReason  string
	CurriculumExists bool
}

// Health reports readiness for the health endpoint.
func (d *Dispatcher) Health() Health {
	h := Health{
		Ready:            d.Ready(),
		Responders:       d.responders.Names(),
		CurriculumExists: d.lessons.Exists(),
	}
	if !h.Ready && d.initErr != nil {
		h.Reason = d.initErr.Error()
	}
	if d.responders != nil {
		r := d.responders.Retrieval()
		h.Retrieval = r.Available()
		if !h.Retrieval {
			h.RetrievalReason = r.Reason()
		}
	}
	return h
}

// Lessons returns the catalog the dispatcher teaches from.
func (d *Dispatcher) Lessons() *lessons.Catalog { return d.lessons }

// Sessions returns the session store, which may be nil.
func (d *Dispatcher) Sessions() session.Store { return d.sessions }
