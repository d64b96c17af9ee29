package chat

import (
	"testing"

	"github.com/onnwee/song-tender/router"
)

func TestCallerTier(t *testing.T) {
	tests := []struct {
		name   string
		badges map[string]int
		want   router.Tier
	}{
		{"broadcaster", map[string]int{"broadcaster": 1}, router.TierBroadcaster},
		{"moderator", map[string]int{"moderator": 1}, router.TierModerator},
		{"subscriber only", map[string]int{"subscriber": 12}, router.TierViewer},
		{"no badges", nil, router.TierViewer},
		{"broadcaster wins over moderator", map[string]int{"broadcaster": 1, "moderator": 1}, router.TierBroadcaster},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := callerTier(tt.badges); got != tt.want {
				t.Errorf("callerTier(%v) = %v, want %v", tt.badges, got, tt.want)
			}
		})
	}
}

func TestSubTier(t *testing.T) {
	tests := []struct {
		plan string
		want int
	}{
		{"1000", 1},
		{"2000", 2},
		{"3000", 3},
		{"Prime", 1},
		{"", 1},
	}
	for _, tt := range tests {
		if got := subTier(tt.plan); got != tt.want {
			t.Errorf("subTier(%q) = %d, want %d", tt.plan, got, tt.want)
		}
	}
}
