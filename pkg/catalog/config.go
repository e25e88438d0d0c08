package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// MaxWeekNumber is the length of the onboarding challenge cycle.
const MaxWeekNumber = 4

// LoadConfig loads the catalog from a YAML file.
// Supports environment variable expansion in the form ${VAR_NAME} or ${VAR_NAME:default}.
func LoadConfig(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	expanded := expandEnvVars(string(data))

	var c Catalog
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML catalog: %w", err)
	}

	c.index()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	return &c, nil
}

// Validate validates the catalog for common errors.
func (c *Catalog) Validate() error {
	if c.rankIndex == nil {
		c.index()
	}

	if len(c.Ranks) == 0 {
		return fmt.Errorf("at least one rank is required")
	}
	if c.Ranks[0].XPThreshold != 0 {
		return fmt.Errorf("first rank %s must have xp_threshold 0", c.Ranks[0].Name)
	}

	// Ranks: unique names, strictly increasing thresholds
	rankNames := make(map[string]bool)
	for i, r := range c.Ranks {
		if r.Name == "" {
			return fmt.Errorf("rank at position %d has empty name", i)
		}
		if rankNames[r.Name] {
			return fmt.Errorf("duplicate rank name: %s", r.Name)
		}
		rankNames[r.Name] = true

		if i > 0 && r.XPThreshold <= c.Ranks[i-1].XPThreshold {
			return fmt.Errorf("rank %s xp_threshold %d must exceed %s threshold %d",
				r.Name, r.XPThreshold, c.Ranks[i-1].Name, c.Ranks[i-1].XPThreshold)
		}
		if r.CommissionRate < 0 || r.CommissionRate > 1 {
			return fmt.Errorf("rank %s commission_rate %v must be within [0,1]", r.Name, r.CommissionRate)
		}
	}

	// Lessons: unique ids, known types and ranks
	lessonIDs := make(map[string]bool)
	for _, l := range c.Lessons {
		if l.ID == "" {
			return fmt.Errorf("lesson with empty ID found")
		}
		if lessonIDs[l.ID] {
			return fmt.Errorf("duplicate lesson ID: %s", l.ID)
		}
		lessonIDs[l.ID] = true

		switch l.Type {
		case LessonCourse, LessonTask, LessonQuiz:
		default:
			return fmt.Errorf("lesson %s has unknown type %q", l.ID, l.Type)
		}
		if !rankNames[l.RankRequired] {
			return fmt.Errorf("lesson %s references unknown rank: %s", l.ID, l.RankRequired)
		}
		if l.XPReward < 0 {
			return fmt.Errorf("lesson %s has negative xp_reward", l.ID)
		}
		if l.Auto != nil {
			if l.Auto.Kind != AutoLoginDays && l.Auto.Kind != AutoLoginStreak {
				return fmt.Errorf("lesson %s has unknown auto kind %q", l.ID, l.Auto.Kind)
			}
			if l.Auto.Target < 1 {
				return fmt.Errorf("lesson %s auto target must be at least 1", l.ID)
			}
			if l.Type == LessonCourse {
				return fmt.Errorf("lesson %s: course lessons cannot be auto-completed", l.ID)
			}
		}
	}

	// Every required task id must reference a lesson
	for _, r := range c.Ranks {
		for _, id := range r.RequiredTaskIDs {
			if !lessonIDs[id] {
				return fmt.Errorf("rank %s references unknown lesson: %s", r.Name, id)
			}
		}
	}

	// Challenges
	challengeIDs := make(map[string]bool)
	for _, ch := range c.Challenges {
		if ch.ID == "" {
			return fmt.Errorf("challenge with empty ID found")
		}
		if challengeIDs[ch.ID] {
			return fmt.Errorf("duplicate challenge ID: %s", ch.ID)
		}
		challengeIDs[ch.ID] = true

		if ch.WeekNumber < 1 || ch.WeekNumber > MaxWeekNumber {
			return fmt.Errorf("challenge %s week_number %d must be within 1-%d", ch.ID, ch.WeekNumber, MaxWeekNumber)
		}
		if ch.RankScope != "" && !rankNames[ch.RankScope] {
			return fmt.Errorf("challenge %s references unknown rank: %s", ch.ID, ch.RankScope)
		}
		if ch.Requirement.Type == "" {
			return fmt.Errorf("challenge %s has empty requirement type", ch.ID)
		}
		if ch.Requirement.Target < 1 {
			return fmt.Errorf("challenge %s requirement target must be at least 1", ch.ID)
		}
		if ch.XPReward < 0 {
			return fmt.Errorf("challenge %s has negative xp_reward", ch.ID)
		}
	}

	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		// Support ${VAR:default} syntax
		parts := strings.SplitN(key, ":", 2)
		varName := parts[0]
		defaultValue := ""
		if len(parts) == 2 {
			defaultValue = parts[1]
		}

		value := os.Getenv(varName)
		if value == "" {
			return defaultValue
		}
		return value
	})
}
