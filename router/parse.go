package router

import "strings"

// ParsedRequest is the artist/title guess extracted from request text.
// Targeted is false when no sensible split exists; the whole text is then
// treated as an untargeted search query.
type ParsedRequest struct {
	Artist   string
	Title    string
	Targeted bool
}

// ParseRequestText splits free text into (artist, title).
//
// An explicit separator wins: "artist - title", or "title by artist".
// Otherwise a freeform guess applies: all-lower-case text takes the first
// word as artist and the rest as title; exactly two words with only the
// first capitalized take them as (artist, title). Anything else is left
// untargeted rather than guessed wrong.
func ParseRequestText(text string) ParsedRequest {
	text = strings.TrimSpace(text)
	if artist, title, ok := strings.Cut(text, " - "); ok && artist != "" && title != "" {
		return ParsedRequest{Artist: strings.TrimSpace(artist), Title: strings.TrimSpace(title), Targeted: true}
	}
	if i := strings.Index(strings.ToLower(text), " by "); i > 0 && i+4 < len(text) {
		return ParsedRequest{
			Artist:   strings.TrimSpace(text[i+4:]),
			Title:    strings.TrimSpace(text[:i]),
			Targeted: true,
		}
	}

	words := strings.Fields(text)
	if text == strings.ToLower(text) && len(words) >= 2 {
		return ParsedRequest{Artist: words[0], Title: strings.Join(words[1:], " "), Targeted: true}
	}
	if len(words) == 2 && isCapitalized(words[0]) && !isCapitalized(words[1]) {
		return ParsedRequest{Artist: words[0], Title: words[1], Targeted: true}
	}
	return ParsedRequest{Title: text}
}

func isCapitalized(w string) bool {
	if w == "" {
		return false
	}
	c := w[0]
	return c >= 'A' && c <= 'Z'
}
