package catalog

import "testing"

func TestScorePrefersExactMatch(t *testing.T) {
	exact := Candidate{Artist: "Green Day", Title: "American Idiot"}
	tribute := Candidate{Artist: "Greenday Tribute", Title: "American Idiot Cover"}

	exactScore := Score("Green Day", "American Idiot", exact)
	tributeScore := Score("Green Day", "American Idiot", tribute)
	if exactScore <= tributeScore {
		t.Errorf("exact=%d tribute=%d, want exact strictly higher", exactScore, tributeScore)
	}

	// Order-independent: the same candidate wins either way around.
	for _, cands := range [][]Candidate{{exact, tribute}, {tribute, exact}} {
		best, ok := BestMatch("Green Day", "American Idiot", cands)
		if !ok || best.Artist != "Green Day" {
			t.Errorf("BestMatch picked %+v ok=%v", best, ok)
		}
	}
}

func TestScoreTiers(t *testing.T) {
	tests := []struct {
		name         string
		search, cand string
		wantTier     int
	}{
		{"exact case-insensitive", "muse", "Muse", 10},
		{"candidate contains search", "muse", "Muse Tribute Band", 5},
		{"search contains candidate", "the amazing muse", "Muse", 3},
		{"no relation", "muse", "Radiohead", 0},
		{"empty search", "", "Muse", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tierScore(tt.search, tt.cand); got != tt.wantTier {
				t.Errorf("tierScore(%q, %q) = %d, want %d", tt.search, tt.cand, got, tt.wantTier)
			}
		})
	}
}

func TestScoreDeterministic(t *testing.T) {
	cand := Candidate{Artist: "Muse", Title: "Knights of Cydonia"}
	first := Score("Muse", "Knights of Cydonia", cand)
	for i := 0; i < 10; i++ {
		if got := Score("Muse", "Knights of Cydonia", cand); got != first {
			t.Fatalf("score changed between calls: %d then %d", first, got)
		}
	}
}

func TestBestMatchTiesKeepCatalogOrder(t *testing.T) {
	cands := []Candidate{
		{Artist: "Muse", Title: "Uprising", Album: "first"},
		{Artist: "Muse", Title: "Uprising", Album: "second"},
	}
	best, ok := BestMatch("Muse", "Uprising", cands)
	if !ok || best.Album != "first" {
		t.Errorf("tie broke catalog order: %+v", best)
	}
}

func TestBestMatchEmpty(t *testing.T) {
	if _, ok := BestMatch("a", "b", nil); ok {
		t.Error("BestMatch on empty slice reported ok")
	}
}
