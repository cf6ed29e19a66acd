package gamification

import (
	"github.com/nursehub/backend/internal/catalog"
	"github.com/nursehub/backend/internal/models"
)

// Snapshot is the read-only state a criterion is evaluated against. It is
// assembled once per evaluation pass so every criterion in the pass sees
// the same catalog version and progress.
type Snapshot struct {
	Catalog  *catalog.Index
	Progress map[string]models.SessionProgress // by session id
	Totals   models.UserPointsTotal
	Streaks  map[string]models.StreakState // by streak type
}

// CriterionKind tags the closed set of criteria the evaluator understands.
// Definitions are data, not code: unlock rules are declarative and the
// dispatcher below is the only place they are interpreted.
type CriterionKind string

const (
	// TopicsMasteredAtLeast: at least Count topics fully mastered. A topic
	// is fully mastered when every session is mastered and the completed
	// section count equals the catalog section count; zero-section topics
	// never qualify.
	TopicsMasteredAtLeast CriterionKind = "topics_mastered_at_least"

	// AllTopicsMastered: every topic with at least one section mastered.
	AllTopicsMastered CriterionKind = "all_topics_mastered"

	// QuizSessionsMasteredAtLeast: at least Count quiz sessions mastered.
	QuizSessionsMasteredAtLeast CriterionKind = "quiz_sessions_mastered_at_least"

	// AllQuizSectionsMastered: every quiz-type section in the catalog is
	// completed in a session whose status is mastered.
	AllQuizSectionsMastered CriterionKind = "all_quiz_sections_mastered"

	// SectionsOfTypeCompletedAtLeast: at least Count sections of
	// SectionType completed, in any session state.
	SectionsOfTypeCompletedAtLeast CriterionKind = "sections_of_type_completed_at_least"

	// AllSectionsOfTypeCompleted: every catalog section of SectionType
	// completed.
	AllSectionsOfTypeCompleted CriterionKind = "all_sections_of_type_completed"

	// SectionsCompletedAtLeast: at least Count sections completed overall.
	SectionsCompletedAtLeast CriterionKind = "sections_completed_at_least"

	// TotalPointsAtLeast: running point total of at least Count.
	TotalPointsAtLeast CriterionKind = "total_points_at_least"

	// StreakAtLeast: current streak of StreakType at least Count days.
	StreakAtLeast CriterionKind = "streak_at_least"
)

// Criterion is one declarative unlock rule. Which fields are meaningful
// depends on Kind.
type Criterion struct {
	Kind        CriterionKind      `json:"kind"`
	Count       int                `json:"count,omitempty"`
	SectionType models.SectionType `json:"section_type,omitempty"`
	StreakType  string             `json:"streak_type,omitempty"`
}

// Met evaluates the criterion against the snapshot. Purely functional:
// no side effects, deterministic for a given snapshot.
func (c Criterion) Met(snap *Snapshot) bool {
	switch c.Kind {
	case TopicsMasteredAtLeast:
		return countMasteredTopics(snap) >= c.Count
	case AllTopicsMastered:
		eligible := 0
		for _, topic := range snap.Catalog.Topics() {
			if snap.Catalog.CountSectionsInTopic(topic.ID) > 0 {
				eligible++
			}
		}
		return eligible > 0 && countMasteredTopics(snap) == eligible
	case QuizSessionsMasteredAtLeast:
		return countMasteredQuizSessions(snap) >= c.Count
	case AllQuizSectionsMastered:
		return allQuizSectionsMastered(snap)
	case SectionsOfTypeCompletedAtLeast:
		return countCompletedOfType(snap, c.SectionType) >= c.Count
	case AllSectionsOfTypeCompleted:
		total := snap.Catalog.CountSectionsOfType(c.SectionType)
		return total > 0 && countCompletedOfType(snap, c.SectionType) == total
	case SectionsCompletedAtLeast:
		n := 0
		for _, p := range snap.Progress {
			n += len(p.CompletedSectionIDs)
		}
		return n >= c.Count
	case TotalPointsAtLeast:
		return snap.Totals.TotalPoints >= int64(c.Count)
	case StreakAtLeast:
		return snap.Streaks[c.StreakType].CurrentStreak >= c.Count
	}
	return false
}

// topicMastered checks full mastery of one topic: all sessions mastered
// and the per-topic completed section count equals the catalog count.
func topicMastered(snap *Snapshot, topic models.CatalogTopic) bool {
	totalSections := snap.Catalog.CountSectionsInTopic(topic.ID)
	if totalSections == 0 {
		return false
	}
	completed := 0
	for _, session := range topic.Sessions {
		p, ok := snap.Progress[session.ID]
		if !ok || p.Status != models.StatusMastered {
			return false
		}
		completed += len(p.CompletedSectionIDs)
	}
	return completed == totalSections
}

func countMasteredTopics(snap *Snapshot) int {
	n := 0
	for _, topic := range snap.Catalog.Topics() {
		if topicMastered(snap, topic) {
			n++
		}
	}
	return n
}

func countMasteredQuizSessions(snap *Snapshot) int {
	n := 0
	for _, topic := range snap.Catalog.Topics() {
		for _, session := range topic.Sessions {
			if !snap.Catalog.IsQuizSession(session.ID) {
				continue
			}
			if p, ok := snap.Progress[session.ID]; ok && p.Status == models.StatusMastered {
				n++
			}
		}
	}
	return n
}

func allQuizSectionsMastered(snap *Snapshot) bool {
	total := snap.Catalog.CountSectionsOfType(models.SectionQuiz)
	if total == 0 {
		return false
	}
	for _, topic := range snap.Catalog.Topics() {
		for _, session := range topic.Sessions {
			for _, sec := range session.Sections {
				if sec.Type != models.SectionQuiz {
					continue
				}
				p, ok := snap.Progress[session.ID]
				if !ok || p.Status != models.StatusMastered || !p.HasSection(sec.ID) {
					return false
				}
			}
		}
	}
	return true
}

func countCompletedOfType(snap *Snapshot, t models.SectionType) int {
	n := 0
	for _, topic := range snap.Catalog.Topics() {
		for _, session := range topic.Sessions {
			p, ok := snap.Progress[session.ID]
			if !ok {
				continue
			}
			for _, sec := range session.Sections {
				if sec.Type == t && p.HasSection(sec.ID) {
					n++
				}
			}
		}
	}
	return n
}
