// Package responder holds the tutor's text-generation strategies. Each
// responder renders a fixed prompt template and streams the language
// model's reply. Responders are stateless and bound once at startup.
package responder

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"go.uber.org/zap"

	"github.com/emera/sattur/internal/index"
	"github.com/emera/sattur/internal/llm"
	"github.com/emera/sattur/internal/prompt"
)

// Name identifies a responder.
type Name string

const (
	Translator     Name = "translator"
	Grammar        Name = "grammar"
	Conversational Name = "conversational"
	TeachLesson    Name = "teach-lesson"
)

// Routable lists the responders a routing decision may select, in the
// order the router matches them. TeachLesson is deliberately absent.
var Routable = []Name{Translator, Grammar, Conversational}

// IsRoutable reports whether n may be chosen by the router.
func (n Name) IsRoutable() bool {
	for _, r := range Routable {
		if r == n {
			return true
		}
	}
	return false
}

// Descriptions gives the one-line summary of every responder, shown to the
// router model.
var Descriptions = map[Name]string{
	Translator:     "translation requests and the meaning of a word or phrase",
	Grammar:        "grammar rules, language concepts, vocabulary and sentence structure",
	Conversational: "greetings, casual chat, encouragement, and anything that fits no other helper",
	TeachLesson:    "teaching one structured lesson; started by the system, never for general questions",
}

// Input is the structured record a responder renders into its prompt.
// Empty Language, CurrentQuestion or Context count as not supplied.
type Input struct {
	Language         string
	CurrentQuestion  string
	PreviousQuery    string
	PreviousResponse string

	// Context is the full lesson text for TeachLesson.
	Context string
}

// Responder is one bound text-generation strategy.
type Responder interface {
	Name() Name

	// Stream renders the prompt and yields the reply as it is generated.
	// Nothing happens until the sequence is iterated. A template variable
	// missing from in is yielded as an error wrapping
	// prompt.ErrMissingVariable before any model call.
	Stream(ctx context.Context, in Input) iter.Seq2[string, error]
}

// GenConfig holds the generation parameters shared by all responders.
type GenConfig struct {
	MaxTokens   int
	Temperature float64
}

// noPrevious stands in for an absent previous exchange.
const noPrevious = "(none)"

type templateResponder struct {
	name     Name
	tmpl     *prompt.Template
	provider llm.Provider
	gen      GenConfig
}

func (r *templateResponder) Name() Name { return r.name }

func (r *templateResponder) Stream(ctx context.Context, in Input) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		text, err := r.tmpl.Render(inputVars(in))
		if err != nil {
			yield("", err)
			return
		}
		streamPrompt(ctx, r.provider, r.name, r.gen, text, yield)
	}
}

// grammarResponder grounds its answer in retrieved reference text when the
// grammar domain is available and falls back to a template without a
// context slot otherwise.
type grammarResponder struct {
	provider  llm.Provider
	gen       GenConfig
	retrieval index.Retrieval
	logger    *zap.Logger
}

func (r *grammarResponder) Name() Name { return Grammar }

func (r *grammarResponder) Stream(ctx context.Context, in Input) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		vars := inputVars(in)
		tmpl := grammarNoContextTemplate

		if r.retrieval.Available() && in.CurrentQuestion != "" {
			chunks, err := r.retrieval.Retrieve(ctx, in.CurrentQuestion)
			switch {
			case err != nil:
				r.logger.Warn("grammar retrieval failed, answering without context", zap.Error(err))
			case len(chunks) > 0:
				vars["context"] = joinChunks(chunks)
				tmpl = grammarTemplate
			}
		}

		text, err := tmpl.Render(vars)
		if err != nil {
			yield("", err)
			return
		}
		streamPrompt(ctx, r.provider, Grammar, r.gen, text, yield)
	}
}

func streamPrompt(ctx context.Context, p llm.Provider, name Name, gen GenConfig, text string, yield func(string, error) bool) {
	ctx = llm.WithPurpose(ctx, string(name))
	req := llm.UserPrompt(text, gen.MaxTokens, gen.Temperature)
	for chunk, err := range p.Stream(ctx, req) {
		if !yield(chunk, err) || err != nil {
			return
		}
	}
}

func inputVars(in Input) prompt.Vars {
	vars := prompt.Vars{
		"previous_query":    orNone(in.PreviousQuery),
		"previous_response": orNone(in.PreviousResponse),
	}
	if in.Language != "" {
		vars["language"] = in.Language
	}
	if in.CurrentQuestion != "" {
		vars["current_question"] = in.CurrentQuestion
	}
	if in.Context != "" {
		vars["context"] = in.Context
	}
	return vars
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return noPrevious
	}
	return s
}

func joinChunks(chunks []index.Chunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s", c.Source, c.Content)
	}
	return b.String()
}
