package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"REQUEST_COOLDOWN", "MAX_PENDING_REQUESTS", "PRIORITY_TOKEN_COST", "SEARCH_TIMEOUT", "DB_DSN", "HTTP_ADDR", "YT_SCOPES"} {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.RequestCooldown != 60*time.Second {
		t.Errorf("RequestCooldown = %v, want 60s", cfg.RequestCooldown)
	}
	if cfg.MaxPending != 1 {
		t.Errorf("MaxPending = %d, want 1", cfg.MaxPending)
	}
	if cfg.PriorityCost != 1 {
		t.Errorf("PriorityCost = %d, want 1", cfg.PriorityCost)
	}
	if cfg.SearchTimeout != 10*time.Second {
		t.Errorf("SearchTimeout = %v, want 10s", cfg.SearchTimeout)
	}
	if cfg.DBDsn == "" {
		t.Error("expected a default DB DSN")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.YTScopes == "" {
		t.Error("expected a default YouTube scope")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REQUEST_COOLDOWN", "90s")
	t.Setenv("MAX_PENDING_REQUESTS", "3")
	t.Setenv("PRIORITY_TOKEN_COST", "2")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.RequestCooldown != 90*time.Second || cfg.MaxPending != 3 || cfg.PriorityCost != 2 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct{ key, val string }{
		{"REQUEST_COOLDOWN", "soon"},
		{"MAX_PENDING_REQUESTS", "0"},
		{"MAX_PENDING_REQUESTS", "many"},
		{"PRIORITY_TOKEN_COST", "-1"},
		{"SEARCH_TIMEOUT", "fast"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.val, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("Load() accepted %s=%q", tt.key, tt.val)
			}
		})
	}
}

func TestValidateChatReady(t *testing.T) {
	t.Setenv("TWITCH_CHANNEL", "chan")
	t.Setenv("TWITCH_BOT_USERNAME", "bot")
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:token")
	cfg, _ := Load()
	if err := cfg.ValidateChatReady(); err != nil {
		t.Errorf("expected valid chat config, got %v", err)
	}
	if err := os.Unsetenv("TWITCH_CHANNEL"); err != nil {
		t.Fatalf("failed to unset TWITCH_CHANNEL: %v", err)
	}
	cfg, _ = Load()
	if err := cfg.ValidateChatReady(); err == nil {
		t.Errorf("expected error when missing twitch envs")
	}
}

func TestFeatureFlags(t *testing.T) {
	t.Setenv("CATALOG_USERNAME", "")
	t.Setenv("CATALOG_PASSWORD", "")
	t.Setenv("YT_CLIENT_ID", "")
	t.Setenv("YT_CLIENT_SECRET", "")
	cfg, _ := Load()
	if cfg.HasCatalogCredentials() {
		t.Error("HasCatalogCredentials true without credentials")
	}
	if cfg.HasYouTube() {
		t.Error("HasYouTube true without client credentials")
	}

	t.Setenv("CATALOG_USERNAME", "user")
	t.Setenv("CATALOG_PASSWORD", "pass")
	t.Setenv("YT_CLIENT_ID", "id")
	t.Setenv("YT_CLIENT_SECRET", "secret")
	cfg, _ = Load()
	if !cfg.HasCatalogCredentials() || !cfg.HasYouTube() {
		t.Error("feature flags false with credentials set")
	}
}
