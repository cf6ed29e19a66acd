package catalog

import (
	"sync/atomic"

	"github.com/nursehub/backend/internal/models"
)

// Index is a read-only lookup structure over one published catalog
// version. Criteria evaluation assumes a consistent snapshot for the
// whole pass, so a catalog change means building a new Index and swapping
// it wholesale — an Index is never mutated after Build.
type Index struct {
	catalog models.Catalog

	sections map[string]sectionRef
	sessions map[string]sessionRef
	topics   map[string]*models.CatalogTopic

	typeCounts map[models.SectionType]int
}

type sectionRef struct {
	topic   *models.CatalogTopic
	session *models.CatalogSession
	section *models.CatalogSection
}

type sessionRef struct {
	topic   *models.CatalogTopic
	session *models.CatalogSession
}

// Build constructs an Index from a published catalog tree.
func Build(c models.Catalog) *Index {
	idx := &Index{
		catalog:    c,
		sections:   make(map[string]sectionRef),
		sessions:   make(map[string]sessionRef),
		topics:     make(map[string]*models.CatalogTopic),
		typeCounts: make(map[models.SectionType]int),
	}
	for ti := range idx.catalog.Topics {
		topic := &idx.catalog.Topics[ti]
		idx.topics[topic.ID] = topic
		for si := range topic.Sessions {
			session := &topic.Sessions[si]
			idx.sessions[session.ID] = sessionRef{topic: topic, session: session}
			for ci := range session.Sections {
				section := &session.Sections[ci]
				idx.sections[section.ID] = sectionRef{topic: topic, session: session, section: section}
				idx.typeCounts[section.Type]++
			}
		}
	}
	return idx
}

// Version is the publish identifier of the underlying catalog.
func (idx *Index) Version() string { return idx.catalog.Version }

// Topics returns the topics in stable catalog order.
func (idx *Index) Topics() []models.CatalogTopic { return idx.catalog.Topics }

// FindSection resolves a section id to its section, session, and topic.
// ok is false for ids not in this catalog version.
func (idx *Index) FindSection(sectionID string) (section models.CatalogSection, session models.CatalogSession, topic models.CatalogTopic, ok bool) {
	ref, found := idx.sections[sectionID]
	if !found {
		return models.CatalogSection{}, models.CatalogSession{}, models.CatalogTopic{}, false
	}
	return *ref.section, *ref.session, *ref.topic, true
}

// SectionsOf returns the sections of a session, nil if the session is
// unknown.
func (idx *Index) SectionsOf(sessionID string) []models.CatalogSection {
	ref, ok := idx.sessions[sessionID]
	if !ok {
		return nil
	}
	return ref.session.Sections
}

// SessionsOf returns the sessions of a topic, nil if the topic is unknown.
func (idx *Index) SessionsOf(topicID string) []models.CatalogSession {
	topic, ok := idx.topics[topicID]
	if !ok {
		return nil
	}
	return topic.Sessions
}

// TopicOf returns the topic id owning a session.
func (idx *Index) TopicOf(sessionID string) (string, bool) {
	ref, ok := idx.sessions[sessionID]
	if !ok {
		return "", false
	}
	return ref.topic.ID, true
}

// HasSession reports whether the session id exists in this version.
func (idx *Index) HasSession(sessionID string) bool {
	_, ok := idx.sessions[sessionID]
	return ok
}

// IsQuizSession reports whether the session contains at least one quiz
// section, which makes mastery score-gated.
func (idx *Index) IsQuizSession(sessionID string) bool {
	ref, ok := idx.sessions[sessionID]
	if !ok {
		return false
	}
	for _, sec := range ref.session.Sections {
		if sec.Type == models.SectionQuiz {
			return true
		}
	}
	return false
}

// MasteryThreshold returns the session's threshold override, or the given
// platform default when the session does not declare one.
func (idx *Index) MasteryThreshold(sessionID string, platformDefault float64) float64 {
	ref, ok := idx.sessions[sessionID]
	if !ok || ref.session.MasteryThreshold == nil {
		return platformDefault
	}
	return *ref.session.MasteryThreshold
}

// CountSectionsOfType returns the platform-wide count of sections of the
// given type.
func (idx *Index) CountSectionsOfType(t models.SectionType) int {
	return idx.typeCounts[t]
}

// CountSectionsInTopic returns the total number of sections under a topic.
func (idx *Index) CountSectionsInTopic(topicID string) int {
	topic, ok := idx.topics[topicID]
	if !ok {
		return 0
	}
	n := 0
	for _, s := range topic.Sessions {
		n += len(s.Sections)
	}
	return n
}

// TotalSections returns the number of sections across the whole catalog.
func (idx *Index) TotalSections() int {
	return len(idx.sections)
}

// Holder hands out the current Index and lets a republish swap it
// atomically. Readers always see a complete snapshot, old or new.
type Holder struct {
	current atomic.Pointer[Index]
}

// NewHolder creates a Holder seeded with the given index.
func NewHolder(idx *Index) *Holder {
	h := &Holder{}
	h.current.Store(idx)
	return h
}

// Snapshot returns the current index.
func (h *Holder) Snapshot() *Index { return h.current.Load() }

// Swap replaces the current index with a freshly built one.
func (h *Holder) Swap(idx *Index) { h.current.Store(idx) }

// Provider is the read side of a Holder. The engine only ever needs
// snapshots; swapping stays with whoever owns the publish pipeline.
type Provider interface {
	Snapshot() *Index
}
