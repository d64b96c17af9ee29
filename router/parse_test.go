package router

import "testing"

func TestParseRequestText(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		artist   string
		title    string
		targeted bool
	}{
		{"explicit dash", "Muse - Uprising", "Muse", "Uprising", true},
		{"dash trims spaces", "  Muse -   Uprising  ", "Muse", "Uprising", true},
		{"title by artist", "Uprising by Muse", "Muse", "Uprising", true},
		{"by is case-insensitive", "Uprising BY Muse", "Muse", "Uprising", true},
		{"all lower first word artist", "muse uprising", "muse", "uprising", true},
		{"all lower multi-word title", "muse knights of cydonia", "muse", "knights of cydonia", true},
		{"two words capitalized first", "Muse uprising", "Muse", "uprising", true},
		{"two words both capitalized", "American Idiot", "", "American Idiot", false},
		{"mixed case no separator", "Knights Of Cydonia", "", "Knights Of Cydonia", false},
		{"single word", "Uprising", "", "Uprising", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRequestText(tt.in)
			if got.Artist != tt.artist || got.Title != tt.title || got.Targeted != tt.targeted {
				t.Errorf("ParseRequestText(%q) = %+v, want {%q %q %v}",
					tt.in, got, tt.artist, tt.title, tt.targeted)
			}
		})
	}
}
