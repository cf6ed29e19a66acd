package models

import "time"

// SessionStatus is the lifecycle of a user's work on one session.
type SessionStatus string

const (
	StatusNotStarted SessionStatus = "not-started"
	StatusInProgress SessionStatus = "in-progress"
	StatusMastered   SessionStatus = "mastered"
)

// SessionProgress is the per-user completion record for one session.
// CompletedSectionIDs only ever grows — a section cannot be uncompleted.
// Version is the optimistic-concurrency token for the row upsert, so two
// near-simultaneous completions merge instead of overwriting each other.
type SessionProgress struct {
	UserID              int64         `json:"user_id"`
	TopicID             string        `json:"topic_id"`
	SessionID           string        `json:"session_id"`
	CompletedSectionIDs []string      `json:"completed_section_ids"`
	Status              SessionStatus `json:"status"`
	LastQuizScore       *float64      `json:"last_quiz_score,omitempty"`
	Version             int64         `json:"-"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// HasSection reports whether the section is already completed.
func (p *SessionProgress) HasSection(sectionID string) bool {
	for _, id := range p.CompletedSectionIDs {
		if id == sectionID {
			return true
		}
	}
	return false
}

// CompletionEvent is what the activity collaborator (UI, quiz runner)
// feeds into the engine. Score is set for quiz attempts, percent 0-100.
type CompletionEvent struct {
	UserID     int64     `json:"user_id"`
	SectionID  string    `json:"section_id"`
	Score      *float64  `json:"score,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
