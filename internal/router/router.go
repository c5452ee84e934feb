// Package router classifies a learner's general-chat message into exactly
// one routable responder with a single language model call.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/emera/sattur/internal/llm"
	"github.com/emera/sattur/internal/prompt"
	"github.com/emera/sattur/internal/responder"
)

// Default is the route taken when the reply names no routable responder,
// names more than one, or the model call fails.
const Default = responder.Conversational

// Decision is the outcome of routing one request.
type Decision struct {
	// Route is always one of responder.Routable.
	Route responder.Name

	// Confident is false when Route is the fallback rather than a clean
	// match in the model's reply.
	Confident bool

	// Raw is the model's reply, kept for logging.
	Raw string
}

// Template is the router's classification prompt.
var Template = prompt.MustParse("router", `
--- WHAT YOU DO ---
You route a language learner's message to the one helper best suited to answer it.

--- CONTEXT ---
The learner is studying: {language}

--- THE HELPERS ---
{helpers}

--- HOW TO DECIDE ---
- Translation requests or the meaning of a word or phrase go to translator.
- Questions about {language} grammar rules, concepts or sentence structure go to grammar.
- Everything else, including greetings, casual chat and general questions, goes to conversational.
- Never choose teach-lesson. The system starts it on its own when a lesson begins.

--- MESSAGE ---
{current_question}

Answer with exactly one word: translator, grammar or conversational.
`)

// routeSchema constrains structured-output providers to a routable name.
var routeSchema = &llm.Schema{
	Name:        "route-decision",
	Description: "The helper that should answer the learner's message",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"route": map[string]any{
				"type": "string",
				"enum": []string{string(responder.Translator), string(responder.Grammar), string(responder.Conversational)},
			},
		},
		"required":             []string{"route"},
		"additionalProperties": false,
	},
}

// Options configures a Router.
type Options struct {
	// Structured asks the provider for a JSON reply constrained to the
	// routable names. The matching rule applies to the raw reply either way.
	Structured bool

	MaxTokens   int
	Temperature float64
	Logger      *zap.Logger

	// OnDecision, when set, observes every decision.
	OnDecision func(Decision)
}

// Router is stateless and safe for concurrent use.
type Router struct {
	provider llm.Provider
	opts     Options
	logger   *zap.Logger
}

// New creates a Router.
func New(provider llm.Provider, opts Options) *Router {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 64
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{provider: provider, opts: opts, logger: logger}
}

// Route classifies question. It never fails: a provider error or an
// unclear reply yields Default with Confident unset. The returned route is
// never responder.TeachLesson.
func (r *Router) Route(ctx context.Context, question, language string) Decision {
	d := r.route(ctx, question, language)
	if !d.Confident {
		r.logger.Info("low-confidence routing, using default",
			zap.String("route", string(d.Route)),
			zap.String("raw", d.Raw),
		)
	}
	if r.opts.OnDecision != nil {
		r.opts.OnDecision(d)
	}
	return d
}

func (r *Router) route(ctx context.Context, question, language string) Decision {
	text, err := Template.Render(prompt.Vars{
		"language":         language,
		"helpers":          helperList(),
		"current_question": question,
	})
	if err != nil {
		r.logger.Error("render router prompt", zap.Error(err))
		return Decision{Route: Default}
	}

	req := llm.UserPrompt(text, r.opts.MaxTokens, r.opts.Temperature)
	if r.opts.Structured {
		req.Schema = routeSchema
	}

	resp, err := r.provider.Generate(llm.WithPurpose(ctx, "route"), req)
	var raw string
	switch {
	case err == nil:
		raw = resp.Text
	case isInvalidResponse(err, &raw):
		// The model answered but ignored the schema; its text may still
		// name a route.
	default:
		r.logger.Warn("router call failed", zap.Error(err))
		return Decision{Route: Default}
	}

	route, ok := Match(raw)
	return Decision{Route: route, Confident: ok, Raw: raw}
}

// Match applies the routing rule to a model reply: the reply is
// lower-cased and searched for each routable name as a substring. If
// exactly one name occurs, that name is returned with ok set. If none or
// several occur, Default is returned with ok unset. Surrounding words,
// punctuation, quoting and casing are ignored.
func Match(reply string) (route responder.Name, ok bool) {
	lower := strings.ToLower(reply)
	var found []responder.Name
	for _, n := range responder.Routable {
		if strings.Contains(lower, string(n)) {
			found = append(found, n)
		}
	}
	if len(found) != 1 {
		return Default, false
	}
	return found[0], true
}

func helperList() string {
	var b strings.Builder
	for i, n := range []responder.Name{responder.Translator, responder.TeachLesson, responder.Grammar, responder.Conversational} {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, n, responder.Descriptions[n])
	}
	return strings.TrimRight(b.String(), "\n")
}

func isInvalidResponse(err error, raw *string) bool {
	var inv *llm.ErrInvalidResponse
	if errors.As(err, &inv) && inv.Content != "" {
		*raw = inv.Content
		return true
	}
	return false
}
