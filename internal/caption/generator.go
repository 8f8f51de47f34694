// Package caption produces short natural-language descriptions of intake
// photos. The configured provider is consulted with a bounded timeout; any
// failure falls back to a deterministic template, so a caption is always
// produced and captioning never blocks persistence.
package caption

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/moments/internal/classify"
	"github.com/your-org/moments/internal/config"
	"github.com/your-org/moments/internal/observability"
)

// Request carries the context available for one caption.
type Request struct {
	// PersonName is the matched subject's display name, empty when the
	// photo is unmatched.
	PersonName string
	Category   classify.Category
	CapturedAt time.Time
	// Tone is a tenant-configurable style hint folded into the prompt.
	Tone string
}

// TextGenerator is the capability interface over text-generation backends.
type TextGenerator interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Generator wraps a provider with a timeout and the template fallback.
type Generator struct {
	provider TextGenerator
	fallback *TemplateProvider
	timeout  time.Duration
}

// NewGenerator resolves the configured provider once at startup.
func NewGenerator(ctx context.Context, cfg config.CaptionConfig) (*Generator, error) {
	fallback := NewTemplateProvider()

	var provider TextGenerator
	switch cfg.Provider {
	case "openai":
		provider = NewOpenAIProvider(cfg.APIKey, cfg.Model)
	case "gemini":
		p, err := NewGeminiProvider(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("init gemini provider: %w", err)
		}
		provider = p
	case "template":
		provider = fallback
	default:
		return nil, fmt.Errorf("unknown caption provider %q", cfg.Provider)
	}

	return &Generator{
		provider: provider,
		fallback: fallback,
		timeout:  cfg.Timeout,
	}, nil
}

// NewGeneratorWith builds a Generator around an explicit provider.
// Used by tests and by callers that construct providers themselves.
func NewGeneratorWith(provider TextGenerator, timeout time.Duration) *Generator {
	return &Generator{
		provider: provider,
		fallback: NewTemplateProvider(),
		timeout:  timeout,
	}
}

// Generate returns a non-empty caption. Provider errors and timeouts are
// absorbed into the template fallback.
func (g *Generator) Generate(ctx context.Context, req Request) string {
	genCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.provider.Generate(genCtx, req)
	if err != nil || text == "" {
		if err != nil {
			slog.Warn("caption provider failed, using template",
				"provider", g.provider.Name(), "error", err)
		}
		observability.CaptionFallbacks.Inc()
		text, _ = g.fallback.Generate(ctx, req)
	}
	return text
}

// buildPrompt renders the instruction sent to LLM providers.
func buildPrompt(req Request) (system, user string) {
	system = "You are a warm, professional daycare teacher writing photo descriptions for parents. " +
		"Write 1-2 sentences, natural and engaging, focused on the child's activity. " +
		"Avoid phrases like \"captured\" or \"photo shows\"; write as if you witnessed the moment."
	if req.Tone != "" {
		system += " Tone: " + req.Tone + "."
	}

	name := req.PersonName
	if name == "" {
		name = "the children"
	}
	user = fmt.Sprintf("Child: %s. Activity: %s.", name, req.Category)
	if !req.CapturedAt.IsZero() {
		user += fmt.Sprintf(" Time: %s.", req.CapturedAt.Format("15:04"))
	}
	user += " Write a brief, warm description of this moment."
	return system, user
}
