// Package responder turns retrieved documents into an answer. It assembles
// the answer prompt, trims context to the token budget, and calls the chat
// model through eino's model.BaseChatModel.
package responder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/rag"
)

// SystemPrompt instructs the model to answer from the supplied context only.
const SystemPrompt = "You are a helpful assistant. Answer the question based on the provided context. " +
	"If you cannot answer from the context, acknowledge the limitations."

// DefaultTemperature is the sampling temperature used for answers.
const DefaultTemperature float32 = 0.2

// Completer is the generic single-turn completion collaborator.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Options configures a Responder. The zero value is usable.
type Options struct {
	// MaxContextTokens bounds the prompt size (default budget.DefaultMaxContextTokens).
	MaxContextTokens int
	// Temperature is the sampling temperature (default DefaultTemperature).
	// A negative value leaves the provider's configured temperature untouched.
	Temperature *float32
	// Logger receives trimming warnings (default slog.Default()).
	Logger *slog.Logger
}

// Responder implements Completer and answer generation over a chat model.
// It is safe for concurrent use if the underlying model is.
type Responder struct {
	model            model.BaseChatModel
	maxContextTokens int
	temperature      *float32
	log              *slog.Logger
}

// New constructs a Responder. chatModel must be non-nil.
func New(chatModel model.BaseChatModel, opts Options) (*Responder, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: responder: chat model is nil", rag.ErrInvalidParameter)
	}
	if opts.MaxContextTokens <= 0 {
		opts.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	if opts.Temperature == nil {
		t := DefaultTemperature
		opts.Temperature = &t
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Responder{
		model:            chatModel,
		maxContextTokens: opts.MaxContextTokens,
		temperature:      opts.Temperature,
		log:              opts.Logger,
	}, nil
}

// WithTemperature returns a copy of r that samples at temperature t.
func (r *Responder) WithTemperature(t float32) *Responder {
	cp := *r
	cp.temperature = &t
	return &cp
}

// Complete sends one system + user exchange to the model and returns the
// trimmed reply text.
func (r *Responder) Complete(ctx context.Context, system, user string) (string, error) {
	msgs := make([]*schema.Message, 0, 2)
	if system != "" {
		msgs = append(msgs, schema.SystemMessage(system))
	}
	msgs = append(msgs, schema.UserMessage(user))
	return r.generate(ctx, msgs)
}

// Respond answers query from docs. Documents that do not fit the context
// budget are dropped lowest-rank first.
func (r *Responder) Respond(ctx context.Context, query string, docs []rag.Document) (string, error) {
	fixed := []*schema.Message{
		schema.SystemMessage(SystemPrompt),
		schema.UserMessage(UserPrompt("", query)),
	}
	kept := budget.TrimDocuments(fixed, docs, r.maxContextTokens)
	if len(kept) < len(docs) {
		r.log.WarnContext(ctx, "responder: context trimmed to fit token budget",
			slog.Int("documents", len(docs)),
			slog.Int("kept", len(kept)),
			slog.Int("max_context_tokens", r.maxContextTokens),
		)
	}
	return r.Complete(ctx, SystemPrompt, UserPrompt(RenderContext(kept), query))
}

// RenderContext joins document texts with budget.ContextSeparator.
func RenderContext(docs []rag.Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Content
	}
	return strings.Join(parts, budget.ContextSeparator)
}

// UserPrompt renders the answer prompt for a rendered context and query.
func UserPrompt(rendered, query string) string {
	return "Context:\n" + rendered + "\n\nQuestion: " + query +
		"\n\nPlease provide a helpful response based on the context."
}

func (r *Responder) generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	var opts []model.Option
	if r.temperature != nil && *r.temperature >= 0 {
		opts = append(opts, model.WithTemperature(*r.temperature))
	}

	out, err := r.model.Generate(ctx, msgs, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: responder: generate: %w", rag.ErrCompletion, err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", fmt.Errorf("%w: responder: model returned empty content", rag.ErrCompletion)
	}
	return strings.TrimSpace(out.Content), nil
}
