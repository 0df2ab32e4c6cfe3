package services

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HandoffConfig tunes the detector heuristics. Keyword lists and thresholds
// are configuration, not code, so support teams can adjust them without a
// deploy.
type HandoffConfig struct {
	// UrgentKeywords escalate straight to urgent priority on match.
	UrgentKeywords []string `yaml:"urgent_keywords"`
	// RequestKeywords are explicit asks for a human; they escalate to high.
	RequestKeywords []string `yaml:"request_keywords"`
	// NegativeMarkers flag a user turn as negative sentiment.
	NegativeMarkers []string `yaml:"negative_markers"`
	// FrustrationThreshold is how many negative user turns trigger an offer.
	FrustrationThreshold int `yaml:"frustration_threshold"`
	// OfferCooldownTurns suppresses a second offer for this many turns after
	// one was made. Declining suppresses offers for the whole session.
	OfferCooldownTurns int `yaml:"offer_cooldown_turns"`
}

func DefaultHandoffConfig() HandoffConfig {
	return HandoffConfig{
		UrgentKeywords: []string{
			"urgent", "emergency", "immediately", "right now", "asap",
		},
		RequestKeywords: []string{
			"human", "real person", "talk to someone", "speak to an agent",
			"customer service", "support agent", "representative",
		},
		NegativeMarkers: []string{
			"not working", "doesn't work", "useless", "frustrated", "angry",
			"this is ridiculous", "terrible", "waste of time", "still broken",
		},
		FrustrationThreshold: 3,
		OfferCooldownTurns:   2,
	}
}

// LoadHandoffConfig reads overrides from a YAML file; fields left empty in
// the file keep their defaults.
func LoadHandoffConfig(path string) (HandoffConfig, error) {
	cfg := DefaultHandoffConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read handoff config: %w", err)
	}
	var overrides HandoffConfig
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return cfg, fmt.Errorf("parse handoff config: %w", err)
	}
	if len(overrides.UrgentKeywords) > 0 {
		cfg.UrgentKeywords = overrides.UrgentKeywords
	}
	if len(overrides.RequestKeywords) > 0 {
		cfg.RequestKeywords = overrides.RequestKeywords
	}
	if len(overrides.NegativeMarkers) > 0 {
		cfg.NegativeMarkers = overrides.NegativeMarkers
	}
	if overrides.FrustrationThreshold > 0 {
		cfg.FrustrationThreshold = overrides.FrustrationThreshold
	}
	if overrides.OfferCooldownTurns > 0 {
		cfg.OfferCooldownTurns = overrides.OfferCooldownTurns
	}
	return cfg, nil
}
