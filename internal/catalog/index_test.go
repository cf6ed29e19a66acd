package catalog

import (
	"testing"

	"github.com/nursehub/backend/internal/models"
)

func threshold(v float64) *float64 { return &v }

func testCatalog() models.Catalog {
	return models.Catalog{
		Version: "2026-08-01",
		Topics: []models.CatalogTopic{
			{
				ID:   "topic-1",
				Slug: "history-taking",
				Sessions: []models.CatalogSession{
					{
						ID: "history-taking-1",
						Sections: []models.CatalogSection{
							{ID: "ht-1-1", Type: models.SectionContent, EstimatedMinutes: 10},
							{ID: "ht-1-2", Type: models.SectionContent, EstimatedMinutes: 15},
							{ID: "ht-1-3", Type: models.SectionQuiz, EstimatedMinutes: 10},
						},
					},
					{
						ID:               "history-taking-2",
						MasteryThreshold: threshold(95),
						Sections: []models.CatalogSection{
							{ID: "ht-2-1", Type: models.SectionCaseStudy, EstimatedMinutes: 20},
						},
					},
				},
			},
			{
				ID:   "topic-2",
				Slug: "vital-signs",
				Sessions: []models.CatalogSession{
					{
						ID: "vital-signs-1",
						Sections: []models.CatalogSection{
							{ID: "vs-1-1", Type: models.SectionVideo, EstimatedMinutes: 5},
							{ID: "vs-1-2", Type: models.SectionQuiz, EstimatedMinutes: 10},
						},
					},
				},
			},
		},
	}
}

func TestFindSection(t *testing.T) {
	idx := Build(testCatalog())

	section, session, topic, ok := idx.FindSection("ht-1-3")
	if !ok {
		t.Fatal("FindSection(ht-1-3) not found")
	}
	if section.Type != models.SectionQuiz {
		t.Errorf("section type = %s, want quiz", section.Type)
	}
	if session.ID != "history-taking-1" {
		t.Errorf("session = %s, want history-taking-1", session.ID)
	}
	if topic.ID != "topic-1" {
		t.Errorf("topic = %s, want topic-1", topic.ID)
	}

	if _, _, _, ok := idx.FindSection("nope"); ok {
		t.Error("FindSection(nope) should not resolve")
	}
}

func TestCounts(t *testing.T) {
	idx := Build(testCatalog())

	if got := idx.TotalSections(); got != 6 {
		t.Errorf("TotalSections = %d, want 6", got)
	}
	if got := idx.CountSectionsOfType(models.SectionQuiz); got != 2 {
		t.Errorf("quiz sections = %d, want 2", got)
	}
	if got := idx.CountSectionsOfType(models.SectionCaseStudy); got != 1 {
		t.Errorf("case-study sections = %d, want 1", got)
	}
	if got := idx.CountSectionsInTopic("topic-1"); got != 4 {
		t.Errorf("topic-1 sections = %d, want 4", got)
	}
	if got := idx.CountSectionsInTopic("missing"); got != 0 {
		t.Errorf("missing topic sections = %d, want 0", got)
	}
}

func TestQuizSessionAndThreshold(t *testing.T) {
	idx := Build(testCatalog())

	if !idx.IsQuizSession("history-taking-1") {
		t.Error("history-taking-1 should be a quiz session")
	}
	if idx.IsQuizSession("history-taking-2") {
		t.Error("history-taking-2 should not be a quiz session")
	}

	if got := idx.MasteryThreshold("history-taking-1", 80); got != 80 {
		t.Errorf("default threshold = %v, want 80", got)
	}
	if got := idx.MasteryThreshold("history-taking-2", 80); got != 95 {
		t.Errorf("override threshold = %v, want 95", got)
	}
}

func TestHolderSwap(t *testing.T) {
	v1 := Build(testCatalog())
	h := NewHolder(v1)

	if h.Snapshot().Version() != "2026-08-01" {
		t.Fatalf("snapshot version = %s", h.Snapshot().Version())
	}

	c2 := testCatalog()
	c2.Version = "2026-09-01"
	h.Swap(Build(c2))

	if h.Snapshot().Version() != "2026-09-01" {
		t.Errorf("after swap, version = %s, want 2026-09-01", h.Snapshot().Version())
	}
	// The old index stays intact for readers that grabbed it before the swap.
	if v1.Version() != "2026-08-01" {
		t.Errorf("old snapshot mutated: version = %s", v1.Version())
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"no version", `{"topics":[]}`},
		{"bad type", `{"version":"v1","topics":[{"id":"t","sessions":[{"id":"s","sections":[{"id":"x","type":"podcast"}]}]}]}`},
		{"duplicate section", `{"version":"v1","topics":[{"id":"t","sessions":[{"id":"s","sections":[{"id":"x","type":"content"},{"id":"x","type":"content"}]}]}]}`},
		{"threshold out of range", `{"version":"v1","topics":[{"id":"t","sessions":[{"id":"s","mastery_threshold":140,"sections":[{"id":"x","type":"quiz"}]}]}]}`},
	}
	for _, tc := range cases {
		if _, err := Parse([]byte(tc.doc)); err == nil {
			t.Errorf("%s: Parse accepted invalid document", tc.name)
		}
	}
}
