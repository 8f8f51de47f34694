package caption

import (
	"context"
	"fmt"

	"github.com/your-org/moments/internal/classify"
)

// activityPhrases gives the template fallback a little variety per category.
var activityPhrases = map[classify.Category]string{
	classify.CategoryMeal:     "meal",
	classify.CategoryNap:      "nap",
	classify.CategoryPlay:     "play",
	classify.CategoryLearning: "learning",
	classify.CategoryOutdoor:  "outdoor",
	classify.CategoryArt:      "art",
	classify.CategoryOther:    "activity",
}

// TemplateProvider is the deterministic fallback generator. It never fails
// and never returns an empty string.
type TemplateProvider struct{}

func NewTemplateProvider() *TemplateProvider {
	return &TemplateProvider{}
}

func (p *TemplateProvider) Name() string {
	return "template"
}

func (p *TemplateProvider) Generate(_ context.Context, req Request) (string, error) {
	phrase, ok := activityPhrases[req.Category]
	if !ok {
		phrase = "activity"
	}
	if req.PersonName == "" {
		return fmt.Sprintf("A lovely moment during %s time.", phrase), nil
	}
	return fmt.Sprintf("%s was seen during %s time.", req.PersonName, phrase), nil
}
