package features

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the model's feature configuration.
type Config struct {
	Target   string   `yaml:"target" json:"target"`
	Features []string `yaml:"features" json:"features"`
	Groups   []Group  `yaml:"groups" json:"groups"`
}

// DefaultFeatures is the feature list the model ships with.
var DefaultFeatures = []string{
	"value_last_year",
	"age_last_year",
	"pos",
	"subpos",
	"contract_years_left",
	"team_ppg",
	"team_goal_difference",
	"team_goals_scored",
	"team_goals_conceded",
	"games_played",
	"total_minutes",
	"goals",
	"assists",
	"goal_contributions",
	"goals_per_90",
	"assists_per_90",
	"contrib_per_90",
}

// DefaultConfig returns a fresh copy of the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Target:   "market_value_in_million_eur",
		Features: append([]string(nil), DefaultFeatures...),
		Groups:   append([]Group(nil), DefaultGroups...),
	}
}

// LoadConfig reads a YAML feature configuration. Omitted fields fall back to the
// defaults; an empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read feature config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of the defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	var raw Config
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("failed to parse feature config: %w", err)
	}

	if raw.Target != "" {
		cfg.Target = raw.Target
	}
	if len(raw.Features) > 0 {
		cfg.Features = raw.Features
	}
	if raw.Groups != nil {
		cfg.Groups = raw.Groups
	}

	for i, g := range cfg.Groups {
		if g.Placeholder == "" || g.Prefix == "" {
			return cfg, fmt.Errorf("feature group %d needs both placeholder and prefix", i)
		}
	}
	return cfg, nil
}
