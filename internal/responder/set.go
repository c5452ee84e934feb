package responder

import (
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/emera/sattur/internal/index"
	"github.com/emera/sattur/internal/llm"
)

// Set is the immutable collection of responders the dispatcher draws from.
// It is built once by NewSet and safe for concurrent use.
type Set struct {
	responders map[Name]Responder
	retrieval  index.Retrieval
}

// NewSet binds all four responders to provider. grammar is the retrieval
// capability of the grammar domain; an Unavailable value is fine.
func NewSet(provider llm.Provider, grammar index.Retrieval, gen GenConfig, logger *zap.Logger) (*Set, error) {
	if provider == nil {
		return nil, errors.New("responder set needs a language model provider")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	responders := map[Name]Responder{
		Translator:     &templateResponder{name: Translator, tmpl: translatorTemplate, provider: provider, gen: gen},
		Conversational: &templateResponder{name: Conversational, tmpl: conversationalTemplate, provider: provider, gen: gen},
		TeachLesson:    &templateResponder{name: TeachLesson, tmpl: teachLessonTemplate, provider: provider, gen: gen},
		Grammar: &grammarResponder{
			provider:  provider,
			gen:       gen,
			retrieval: grammar,
			logger:    logger.With(zap.String("responder", string(Grammar))),
		},
	}

	if grammar.Available() {
		logger.Info("grammar responder bound with retrieval")
	} else {
		logger.Warn("grammar responder bound without retrieval", zap.String("reason", grammar.Reason()))
	}
	return &Set{responders: responders, retrieval: grammar}, nil
}

// Get returns the responder called n.
func (s *Set) Get(n Name) (Responder, bool) {
	if s == nil {
		return nil, false
	}
	r, ok := s.responders[n]
	return r, ok
}

// Names lists the bound responders in a stable order.
func (s *Set) Names() []Name {
	if s == nil {
		return nil
	}
	names := make([]Name, 0, len(s.responders))
	for n := range s.responders {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Retrieval returns the grammar domain's retrieval capability.
func (s *Set) Retrieval() index.Retrieval {
	if s == nil {
		return index.Unavailable("responders not initialized")
	}
	return s.retrieval
}
