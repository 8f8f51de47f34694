// Package classify maps contextual signals to a closed set of activity
// categories. It is a pure, total function with no external dependencies,
// serving as the safety net when richer analysis is unavailable.
package classify

import (
	"strings"
	"time"
)

// Category is one of the fixed activity categories.
type Category string

const (
	CategoryMeal     Category = "meal"
	CategoryNap      Category = "nap"
	CategoryPlay     Category = "play"
	CategoryLearning Category = "learning"
	CategoryOutdoor  Category = "outdoor"
	CategoryArt      Category = "art"
	CategoryOther    Category = "other"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryMeal, CategoryNap, CategoryPlay,
	CategoryLearning, CategoryOutdoor, CategoryArt, CategoryOther,
}

// keyword table ordered so more specific categories win over "play"
// (e.g. "playground" appears under both outdoor and play).
var keywordTable = []struct {
	category Category
	keywords []string
}{
	{CategoryMeal, []string{"eating", "lunch", "snack", "food", "dining", "breakfast", "dinner"}},
	{CategoryNap, []string{"sleeping", "nap", "rest", "bed", "tired"}},
	{CategoryLearning, []string{"reading", "book", "learning", "classroom", "lesson", "abc"}},
	{CategoryOutdoor, []string{"outside", "playground", "park", "garden", "nature"}},
	{CategoryArt, []string{"painting", "drawing", "craft", "art", "creative", "coloring"}},
	{CategoryPlay, []string{"playing", "toys", "blocks", "fun", "game"}},
}

// Classify returns exactly one category for the given free-text hint and
// timestamp. Keyword matching on the hint wins; otherwise a local-hour
// heuristic applies; otherwise the result is CategoryOther. It never fails.
func Classify(hint string, at time.Time) Category {
	if c, ok := fromHint(hint); ok {
		return c
	}
	if c, ok := fromHour(at); ok {
		return c
	}
	return CategoryOther
}

func fromHint(hint string) (Category, bool) {
	text := strings.ToLower(hint)
	if strings.TrimSpace(text) == "" {
		return CategoryOther, false
	}
	for _, row := range keywordTable {
		for _, kw := range row.keywords {
			if strings.Contains(text, kw) {
				return row.category, true
			}
		}
	}
	return CategoryOther, false
}

// fromHour maps daytime windows commonly associated with daycare routines.
func fromHour(at time.Time) (Category, bool) {
	if at.IsZero() {
		return CategoryOther, false
	}
	switch hour := at.Hour(); {
	case hour >= 11 && hour < 13:
		return CategoryMeal, true
	case hour >= 13 && hour < 15:
		return CategoryNap, true
	case hour >= 9 && hour < 11:
		return CategoryLearning, true
	case hour >= 16 && hour < 18:
		return CategoryOutdoor, true
	}
	return CategoryOther, false
}

// Valid reports whether s names a known category.
func Valid(s string) bool {
	for _, c := range Categories {
		if string(c) == s {
			return true
		}
	}
	return false
}
