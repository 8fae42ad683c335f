package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("PHARMACIST_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.PharmacistPIN != "" {
		t.Fatalf("expected empty PHARMACIST_PIN when unset, got %q", cfg.PharmacistPIN)
	}
}

func TestLoadClampsBadTTLs(t *testing.T) {
	t.Setenv("ALERT_CACHE_TTL_SECONDS", "-5")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "zero")

	cfg := Load()
	if cfg.AlertCacheTTLSeconds != 30 {
		t.Fatalf("expected alert cache TTL fallback 30, got %d", cfg.AlertCacheTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected token TTL fallback 480, got %d", cfg.AccessTokenTTLMinutes)
	}
}
