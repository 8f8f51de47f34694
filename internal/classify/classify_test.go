package classify

import (
	"testing"
	"time"
)

func at(hour int) time.Time {
	return time.Date(2025, 3, 14, hour, 30, 0, 0, time.UTC)
}

func TestClassifyFromHint(t *testing.T) {
	tests := []struct {
		name     string
		hint     string
		expected Category
	}{
		{"meal keyword", "lunch with friends", CategoryMeal},
		{"meal keyword uppercase", "SNACK time!", CategoryMeal},
		{"nap keyword", "peaceful rest after playing", CategoryNap},
		{"learning keyword", "reading a picture book", CategoryLearning},
		{"outdoor keyword", "fun at the playground", CategoryOutdoor},
		{"art keyword", "finger painting session", CategoryArt},
		{"play keyword", "building with blocks", CategoryPlay},
		{"outdoor wins over play for playground", "playground games", CategoryOutdoor},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Hour chosen so the heuristic would disagree with the hint.
			got := Classify(tc.hint, at(20))
			if got != tc.expected {
				t.Errorf("Classify(%q) = %s; want %s", tc.hint, got, tc.expected)
			}
		})
	}
}

func TestClassifyFromHour(t *testing.T) {
	tests := []struct {
		name     string
		hour     int
		expected Category
	}{
		{"late morning is learning", 9, CategoryLearning},
		{"lunch window", 11, CategoryMeal},
		{"lunch window upper edge", 12, CategoryMeal},
		{"nap window", 13, CategoryNap},
		{"nap window upper edge", 14, CategoryNap},
		{"afternoon outdoor", 16, CategoryOutdoor},
		{"evening falls through to other", 20, CategoryOther},
		{"early morning falls through to other", 6, CategoryOther},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify("", at(tc.hour))
			if got != tc.expected {
				t.Errorf("Classify(\"\", %02d:30) = %s; want %s", tc.hour, got, tc.expected)
			}
		})
	}
}

func TestClassifyHintBeatsHour(t *testing.T) {
	// Hint says art, clock says meal; hint wins.
	if got := Classify("craft corner", at(12)); got != CategoryArt {
		t.Errorf("Classify(craft, 12:30) = %s; want art", got)
	}
}

func TestClassifyZeroTime(t *testing.T) {
	if got := Classify("", time.Time{}); got != CategoryOther {
		t.Errorf("Classify with no signals = %s; want other", got)
	}
}

func TestValid(t *testing.T) {
	for _, c := range Categories {
		if !Valid(string(c)) {
			t.Errorf("Valid(%s) = false; want true", c)
		}
	}
	if Valid("swimming") {
		t.Error("Valid(swimming) = true; want false")
	}
}
