package models

import (
	"fmt"
	"time"
)

// ArticleStatus is the lifecycle state of an Article.
type ArticleStatus int

const (
	ArticleRaw ArticleStatus = iota
	ArticleScored
	ArticleSelected
	ArticleArchived
)

var articleStatusNames = [...]string{
	ArticleRaw:      "RAW",
	ArticleScored:   "SCORED",
	ArticleSelected: "SELECTED",
	ArticleArchived: "ARCHIVED",
}

// ArticleStatuses lists every status in lifecycle order.
var ArticleStatuses = []ArticleStatus{ArticleRaw, ArticleScored, ArticleSelected, ArticleArchived}

func (s ArticleStatus) String() string {
	if s < 0 || int(s) >= len(articleStatusNames) {
		return fmt.Sprintf("ArticleStatus(%d)", int(s))
	}
	return articleStatusNames[s]
}

// ParseArticleStatus converts a status name such as "SELECTED" to its value.
func ParseArticleStatus(name string) (ArticleStatus, error) {
	for i, n := range articleStatusNames {
		if n == name {
			return ArticleStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown article status %q", name)
}

func (s ArticleStatus) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(articleStatusNames) {
		return nil, fmt.Errorf("invalid article status %d", int(s))
	}
	return []byte(articleStatusNames[s]), nil
}

func (s *ArticleStatus) UnmarshalText(text []byte) error {
	v, err := ParseArticleStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// CanTransition reports whether the article state machine allows s -> to.
// ARCHIVED -> SELECTED is the quota rescue edge used by the balance stage.
func (s ArticleStatus) CanTransition(to ArticleStatus) bool {
	switch s {
	case ArticleRaw:
		return to == ArticleScored
	case ArticleScored:
		return to == ArticleSelected || to == ArticleArchived
	case ArticleArchived:
		return to == ArticleSelected
	case ArticleSelected:
		return false
	}
	return false
}

// Assessment is the scoring oracle's verdict on an article.
type Assessment struct {
	Score     int    `json:"score"`
	Category  string `json:"category"`
	Reasoning string `json:"reasoning"`
}

// Article is a candidate content item.
// Assessment is nil exactly while Status is ArticleRaw.
type Article struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	URL         string        `json:"url"`
	Source      string        `json:"source"`
	Content     string        `json:"content"`
	CollectedAt time.Time     `json:"collectedAt"`
	Status      ArticleStatus `json:"status"`
	Assessment  *Assessment   `json:"assessment,omitempty"`
}

// Score returns the assessed score, or 0 for an unscored article.
func (a Article) Score() int {
	if a.Assessment == nil {
		return 0
	}
	return a.Assessment.Score
}

// Category returns the assessed category, or "" for an unscored article.
func (a Article) Category() string {
	if a.Assessment == nil {
		return ""
	}
	return a.Assessment.Category
}

// CheckInvariant verifies the status/assessment pairing.
func (a Article) CheckInvariant() error {
	if a.Status == ArticleRaw && a.Assessment != nil {
		return fmt.Errorf("article %s is RAW but carries an assessment", a.ID)
	}
	if a.Status != ArticleRaw && a.Assessment == nil {
		return fmt.Errorf("article %s is %s without an assessment", a.ID, a.Status)
	}
	return nil
}

// RawItem is what a collector returns before it becomes an Article.
type RawItem struct {
	Title   string
	URL     string
	Content string
	Source  string
}
