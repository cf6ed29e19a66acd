package models

// SectionType classifies a catalog section. The type decides how a
// completion event is interpreted (quiz sections carry a score) and is
// what badge criteria count against.
type SectionType string

const (
	SectionContent   SectionType = "content"
	SectionQuiz      SectionType = "quiz"
	SectionCaseStudy SectionType = "case-study"
	SectionVideo     SectionType = "video"
)

// CatalogSection is a single learnable unit. Immutable once published.
type CatalogSection struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Type             SectionType `json:"type"`
	EstimatedMinutes int         `json:"estimated_minutes"`
}

// CatalogSession is an ordered sequence of sections. A session whose
// sections include at least one quiz section is a quiz session: mastering
// it requires a passing score, not just completion.
//
// MasteryThreshold, when set, overrides the platform-wide threshold for
// this session (percent, 0-100).
type CatalogSession struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Sections         []CatalogSection `json:"sections"`
	MasteryThreshold *float64         `json:"mastery_threshold,omitempty"`
}

// CatalogTopic is an ordered sequence of sessions.
type CatalogTopic struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Slug     string           `json:"slug"`
	Sessions []CatalogSession `json:"sessions"`
}

// Catalog is the published curriculum tree. Version identifies the
// publish; any change to the tree is a new version and a full rebuild of
// the index, never an in-place patch.
type Catalog struct {
	Version string         `json:"version"`
	Topics  []CatalogTopic `json:"topics"`
}
