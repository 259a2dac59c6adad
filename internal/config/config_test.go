package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadParsesRestockOnVoid(t *testing.T) {
	t.Setenv("RESTOCK_ON_VOID", "true")
	if cfg := Load(); !cfg.RestockOnVoid {
		t.Fatalf("expected RESTOCK_ON_VOID=true to enable restocking")
	}

	t.Setenv("RESTOCK_ON_VOID", "nope")
	if cfg := Load(); cfg.RestockOnVoid {
		t.Fatalf("expected unrecognized RESTOCK_ON_VOID value to disable restocking")
	}
}

func TestLoadTokenTTLFallback(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "bogus")
	if cfg := Load(); cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected fallback token TTL 480, got %d", cfg.AccessTokenTTLMinutes)
	}
}
