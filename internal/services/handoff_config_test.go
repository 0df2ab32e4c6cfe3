package services

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadHandoffConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "handoff.yaml")
	contents := []byte("frustration_threshold: 5\nrequest_keywords:\n  - operator\n")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadHandoffConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FrustrationThreshold != 5 {
		t.Errorf("threshold = %d, want 5", cfg.FrustrationThreshold)
	}
	if len(cfg.RequestKeywords) != 1 || cfg.RequestKeywords[0] != "operator" {
		t.Errorf("request keywords = %v, want [operator]", cfg.RequestKeywords)
	}
	// Fields absent from the file keep their defaults.
	if len(cfg.UrgentKeywords) == 0 {
		t.Error("urgent keywords lost their defaults")
	}
	if cfg.OfferCooldownTurns != DefaultHandoffConfig().OfferCooldownTurns {
		t.Errorf("cooldown = %d, want default", cfg.OfferCooldownTurns)
	}
}

func TestLoadHandoffConfigEmptyPath(t *testing.T) {
	cfg, err := LoadHandoffConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FrustrationThreshold != DefaultHandoffConfig().FrustrationThreshold {
		t.Errorf("empty path should return defaults")
	}
}
