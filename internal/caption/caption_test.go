package caption

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/your-org/moments/internal/classify"
)

type failingProvider struct {
	err error
}

func (p *failingProvider) Name() string { return "failing" }

func (p *failingProvider) Generate(context.Context, Request) (string, error) {
	return "", p.err
}

type slowProvider struct{}

func (p *slowProvider) Name() string { return "slow" }

func (p *slowProvider) Generate(ctx context.Context, _ Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(time.Minute):
		return "too late", nil
	}
}

func TestTemplateWithSubject(t *testing.T) {
	p := NewTemplateProvider()
	got, err := p.Generate(context.Background(), Request{
		PersonName: "Emma",
		Category:   classify.CategoryMeal,
	})
	if err != nil {
		t.Fatalf("template generate: %v", err)
	}
	if got != "Emma was seen during meal time." {
		t.Errorf("unexpected caption: %q", got)
	}
}

func TestTemplateWithoutSubject(t *testing.T) {
	p := NewTemplateProvider()
	got, err := p.Generate(context.Background(), Request{Category: classify.CategoryPlay})
	if err != nil {
		t.Fatalf("template generate: %v", err)
	}
	if got == "" {
		t.Fatal("caption must not be empty without a subject")
	}
	if strings.Contains(got, "%!") {
		t.Errorf("malformed caption: %q", got)
	}
}

func TestTemplateUnknownCategory(t *testing.T) {
	p := NewTemplateProvider()
	got, _ := p.Generate(context.Background(), Request{
		PersonName: "Emma",
		Category:   classify.Category("swimming"),
	})
	if got != "Emma was seen during activity time." {
		t.Errorf("unknown category should use generic phrase, got %q", got)
	}
}

func TestGeneratorFallsBackOnError(t *testing.T) {
	g := NewGeneratorWith(&failingProvider{err: errors.New("quota exhausted")}, time.Second)
	got := g.Generate(context.Background(), Request{
		PersonName: "Emma",
		Category:   classify.CategoryNap,
	})
	if got != "Emma was seen during nap time." {
		t.Errorf("fallback caption = %q", got)
	}
}

func TestGeneratorFallsBackOnTimeout(t *testing.T) {
	g := NewGeneratorWith(&slowProvider{}, 10*time.Millisecond)

	start := time.Now()
	got := g.Generate(context.Background(), Request{Category: classify.CategoryArt})
	if time.Since(start) > time.Second {
		t.Fatal("generator did not honor the provider timeout")
	}
	if got == "" {
		t.Error("caption must be non-empty after a timeout")
	}
}

func TestGeneratorNeverEmpty(t *testing.T) {
	g := NewGeneratorWith(&failingProvider{err: errors.New("unavailable")}, time.Second)
	for _, c := range classify.Categories {
		if got := g.Generate(context.Background(), Request{Category: c}); got == "" {
			t.Errorf("empty caption for category %s", c)
		}
	}
}

func TestBuildPromptIncludesTone(t *testing.T) {
	system, user := buildPrompt(Request{
		PersonName: "Emma",
		Category:   classify.CategoryOutdoor,
		CapturedAt: time.Date(2025, 6, 1, 16, 15, 0, 0, time.UTC),
		Tone:       "playful",
	})
	if !strings.Contains(system, "playful") {
		t.Error("system prompt should carry the tenant tone")
	}
	if !strings.Contains(user, "Emma") || !strings.Contains(user, "outdoor") {
		t.Errorf("user prompt missing context: %q", user)
	}
	if !strings.Contains(user, "16:15") {
		t.Errorf("user prompt missing capture time: %q", user)
	}
}
