package rules

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML override of the built-in ladder.
//
//	thresholds:
//	  handoff: 0.4
//	  ask_contact: 0.75
//	rules:
//	  compliance.pricing:
//	    urgency: high
//	  sales.competitor:
//	    disabled: true
//	  lead.product:
//	    patterns: ['\bour\s+sku\b']
//	service_tags:
//	  food: [food, beverage, seafood]
type FileConfig struct {
	Thresholds  *Thresholds             `yaml:"thresholds"`
	Rules       map[string]RuleOverride `yaml:"rules"`
	ServiceTags map[string][]string     `yaml:"service_tags"`
}

// RuleOverride changes one built-in rule. Patterns replace the built-in set.
type RuleOverride struct {
	Disabled bool     `yaml:"disabled"`
	Patterns []string `yaml:"patterns"`
	Urgency  string   `yaml:"urgency"`
	Reason   string   `yaml:"reason"`
}

// ParseConfig decodes YAML, rejecting unknown fields.
func ParseConfig(b []byte) (FileConfig, error) {
	var cfg FileConfig
	if len(bytes.TrimSpace(b)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("rules: parse: %w", err)
	}
	return cfg, nil
}

// LoadFile builds an engine from the YAML file at path. An empty path yields
// the default engine.
func LoadFile(path string) (*Engine, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	cfg, err := ParseConfig(b)
	if err != nil {
		return nil, err
	}
	return NewEngine(cfg)
}
