package server

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/emera/sattur/internal/apperr"
	"github.com/emera/sattur/internal/dispatch"
	"github.com/emera/sattur/internal/responder"
	"github.com/emera/sattur/internal/session"
)

// ChatRequest is the body of every chat endpoint and WebSocket message.
// An absent language means the default one for chat. Teaching a lesson
// needs an explicit language.
type ChatRequest struct {
	Query            string  `json:"query" validate:"required_without=LessonToTeach,max=4000"`
	Language         *string `json:"language,omitempty" validate:"omitempty,max=64"`
	PreviousQuery    *string `json:"previous_query,omitempty" validate:"omitempty,max=16000"`
	PreviousResponse *string `json:"previous_response,omitempty" validate:"omitempty,max=64000"`
	LessonToTeach    *int    `json:"lesson_to_teach,omitempty"`
}

func (s *Server) dispatchRequest(sessionID string, req *ChatRequest) dispatch.Request {
	var language string
	switch {
	case req.Language != nil:
		language = *req.Language
	case req.LessonToTeach == nil:
		language = s.opts.DefaultLanguage
	}
	return dispatch.Request{
		SessionID:        sessionID,
		Query:            req.Query,
		Language:         language,
		PreviousQuery:    req.PreviousQuery,
		PreviousResponse: req.PreviousResponse,
		LessonToTeach:    req.LessonToTeach,
	}
}

// ChatResponse is the body of POST /chat.
type ChatResponse struct {
	Response  string         `json:"response"`
	Route     responder.Name `json:"route"`
	Confident bool           `json:"confident"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeChat(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ans, err := s.d.Chat(r.Context(), s.dispatchRequest(SessionID(r.Context()), req))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Response: ans.Text, Route: ans.Route, Confident: ans.Confident})
}

// handleChatStream writes fragments as plain text as soon as they arrive.
// Errors before the first fragment get a proper status; after that the
// body simply ends.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeChat(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	reply, err := s.d.Handle(r.Context(), s.dispatchRequest(SessionID(r.Context()), req))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer reply.Close()

	rc := http.NewResponseController(w)
	started := false
	for chunk, err := range reply.Stream {
		if err != nil {
			if !started {
				s.writeError(w, r, err)
				return
			}
			s.logger.Warn("stream ended early", zap.String("route", string(reply.Route)), zap.Error(err))
			return
		}
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Route", string(reply.Route))
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(chunk)); err != nil {
			s.logger.Debug("client went away", zap.Error(err))
			return
		}
		if err := rc.Flush(); err != nil {
			s.logger.Debug("flush", zap.Error(err))
		}
	}
}

// LessonView is one entry of GET /lessons.
type LessonView struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Unlocked *bool  `json:"unlocked,omitempty"`
}

// LessonsResponse is the body of GET /lessons.
type LessonsResponse struct {
	Lessons        []LessonView `json:"lessons"`
	UnlockedLesson int          `json:"unlocked_lesson,omitempty"`
}

func (s *Server) handleLessons(w http.ResponseWriter, r *http.Request) {
	language := strings.TrimSpace(r.URL.Query().Get("language"))
	if language == "" {
		s.writeError(w, r, apperr.New(apperr.ErrInvalidRequest, "server.lessons", "The language query parameter is required."))
		return
	}

	list, err := s.d.Lessons().List(language)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := LessonsResponse{Lessons: make([]LessonView, 0, len(list))}
	var st *session.State
	if store := s.d.Sessions(); store != nil {
		st, err = store.Get(r.Context(), SessionID(r.Context()))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.UnlockedLesson = st.UnlockedLesson
	}
	for _, l := range list {
		v := LessonView{Number: l.Number, Title: l.Title}
		if st != nil {
			unlocked := st.Unlocked(l.Number)
			v.Unlocked = &unlocked
		}
		resp.Lessons = append(resp.Lessons, v)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	store := s.d.Sessions()
	if store == nil {
		s.writeError(w, r, apperr.New(apperr.ErrServiceUnavailable, "server.session", "Sessions are not enabled."))
		return
	}
	st, err := store.Get(r.Context(), SessionID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status               string           `json:"status"`
	AgentStatus          string           `json:"agent_status"`
	Reason               string           `json:"reason,omitempty"`
	AvailableResponders  []responder.Name `json:"available_responders"`
	CurriculumPathExists bool             `json:"curriculum_path_exists"`
	RetrievalAvailable   bool             `json:"retrieval_available"`
	RetrievalReason      string           `json:"retrieval_reason,omitempty"`
	Provider             string           `json:"provider,omitempty"`
}

// handleHealth always answers 200 so the process counts as alive; the
// agent status tells whether chat works.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := s.d.Health()
	resp := HealthResponse{
		Status:               "healthy",
		AgentStatus:          "not_ready",
		Reason:               h.Reason,
		AvailableResponders:  h.Responders,
		CurriculumPathExists: h.CurriculumExists,
		RetrievalAvailable:   h.Retrieval,
		RetrievalReason:      h.RetrievalReason,
		Provider:             s.opts.Provider,
	}
	if h.Ready {
		resp.AgentStatus = "ready"
	}
	if resp.AvailableResponders == nil {
		resp.AvailableResponders = []responder.Name{}
	}
	writeJSON(w, http.StatusOK, resp)
}
