package models

import (
	"fmt"
	"strings"
)

// Schedule frequencies.
const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
)

// Schedule describes when the automated trigger fires.
type Schedule struct {
	Frequency string `json:"frequency" yaml:"frequency"`
	Day       string `json:"day" yaml:"day"`
	Hour      int    `json:"hour" yaml:"hour"`
	Minute    int    `json:"minute" yaml:"minute"`
}

// Settings is the curation configuration read by the pipeline and the
// report manager. Neither of them mutates it.
type Settings struct {
	TargetURLs     []string       `json:"targetUrls" yaml:"target_urls"`
	Keywords       []string       `json:"keywords" yaml:"keywords"`
	Schedule       Schedule       `json:"schedule" yaml:"schedule"`
	ScoreThreshold int            `json:"scoreThreshold" yaml:"score_threshold"`
	Categories     []string       `json:"categories" yaml:"categories"`
	CategoryQuotas map[string]int `json:"categoryQuotas" yaml:"category_quotas"`
	PromptTemplate string         `json:"promptTemplate" yaml:"prompt_template"`
}

// Quota returns the minimum selected count for category, 0 when unset.
func (s Settings) Quota(category string) int {
	return s.CategoryQuotas[category]
}

// Clone returns a deep copy so callers cannot alias slices or the quota map.
func (s Settings) Clone() Settings {
	c := s
	c.TargetURLs = append([]string(nil), s.TargetURLs...)
	c.Keywords = append([]string(nil), s.Keywords...)
	c.Categories = append([]string(nil), s.Categories...)
	c.CategoryQuotas = make(map[string]int, len(s.CategoryQuotas))
	for k, v := range s.CategoryQuotas {
		c.CategoryQuotas[k] = v
	}
	return c
}

var weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// Validate checks the write-boundary contract. It returns a *ConfigurationError
// naming the first offending field.
func (s Settings) Validate() error {
	if s.ScoreThreshold < 1 || s.ScoreThreshold > 5 {
		return &ConfigurationError{Field: "scoreThreshold", Reason: fmt.Sprintf("must be between 1 and 5, got %d", s.ScoreThreshold)}
	}
	if len(s.Categories) == 0 {
		return &ConfigurationError{Field: "categories", Reason: "at least one category is required"}
	}
	seen := make(map[string]bool, len(s.Categories))
	for _, c := range s.Categories {
		if strings.TrimSpace(c) == "" {
			return &ConfigurationError{Field: "categories", Reason: "category names must not be blank"}
		}
		if seen[c] {
			return &ConfigurationError{Field: "categories", Reason: fmt.Sprintf("duplicate category %q", c)}
		}
		seen[c] = true
	}
	for c, q := range s.CategoryQuotas {
		if !seen[c] {
			return &ConfigurationError{Field: "categoryQuotas", Reason: fmt.Sprintf("quota for unknown category %q", c)}
		}
		if q < 0 {
			return &ConfigurationError{Field: "categoryQuotas", Reason: fmt.Sprintf("quota for %q must be non-negative, got %d", c, q)}
		}
	}
	return s.Schedule.validate()
}

func (sc Schedule) validate() error {
	switch sc.Frequency {
	case FrequencyDaily:
	case FrequencyWeekly:
		if ParseWeekday(sc.Day) < 0 {
			return &ConfigurationError{Field: "schedule.day", Reason: fmt.Sprintf("unknown weekday %q", sc.Day)}
		}
	default:
		return &ConfigurationError{Field: "schedule.frequency", Reason: fmt.Sprintf("must be %q or %q, got %q", FrequencyDaily, FrequencyWeekly, sc.Frequency)}
	}
	if sc.Hour < 0 || sc.Hour > 23 {
		return &ConfigurationError{Field: "schedule.hour", Reason: fmt.Sprintf("must be between 0 and 23, got %d", sc.Hour)}
	}
	if sc.Minute < 0 || sc.Minute > 59 {
		return &ConfigurationError{Field: "schedule.minute", Reason: fmt.Sprintf("must be between 0 and 59, got %d", sc.Minute)}
	}
	return nil
}

// ParseWeekday maps "Friday" (any case) to 5 following time.Weekday, or -1.
func ParseWeekday(name string) int {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, d := range weekdays {
		if d == name {
			return i
		}
	}
	return -1
}
