package catalog

import (
	"sort"
	"strings"
)

// Score rates how well a candidate matches a target (artist, title) pair.
//
// Artist and title each score on the same three-tier scheme, highest tier
// only: +10 exact (case-insensitive), +5 candidate contains search term,
// +3 search term contains candidate. Then +2 per title word (len > 2) found
// in the candidate title, +2 per combined-query token (len > 2) found in
// "artist title", and a +5 bonus when at least 70% (rounded up, minimum 2)
// of the combined tokens matched.
func Score(searchArtist, searchTitle string, cand Candidate) int {
	score := 0
	score += tierScore(searchArtist, cand.Artist)
	score += tierScore(searchTitle, cand.Title)

	candTitle := strings.ToLower(cand.Title)
	for _, w := range queryTokens(searchTitle) {
		if strings.Contains(candTitle, w) {
			score += 2
		}
	}

	combined := strings.ToLower(cand.Artist + " " + cand.Title)
	tokens := queryTokens(searchArtist + " " + searchTitle)
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(combined, tok) {
			matched++
			score += 2
		}
	}
	if len(tokens) > 0 {
		need := (len(tokens)*7 + 9) / 10 // ceil(70%)
		if need < 2 {
			need = 2
		}
		if matched >= need {
			score += 5
		}
	}
	return score
}

func tierScore(search, candidate string) int {
	s := strings.ToLower(strings.TrimSpace(search))
	c := strings.ToLower(strings.TrimSpace(candidate))
	switch {
	case s == "" || c == "":
		return 0
	case s == c:
		return 10
	case strings.Contains(c, s):
		return 5
	case strings.Contains(s, c):
		return 3
	}
	return 0
}

// BestMatch picks the highest-scoring candidate; ties keep catalog order.
func BestMatch(searchArtist, searchTitle string, cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	ranked := make([]Candidate, len(cands))
	copy(ranked, cands)
	sort.SliceStable(ranked, func(i, j int) bool {
		return Score(searchArtist, searchTitle, ranked[i]) > Score(searchArtist, searchTitle, ranked[j])
	})
	return ranked[0], true
}
