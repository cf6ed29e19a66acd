package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nursehub/backend/internal/models"
)

// Load reads a published catalog document from disk and builds its index.
// The document is the JSON export of the curriculum tree; the engine
// treats it as immutable for the lifetime of the version.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Index, error) {
	var c models.Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	return Build(c), nil
}

func validate(c models.Catalog) error {
	if c.Version == "" {
		return fmt.Errorf("catalog has no version")
	}
	seen := make(map[string]bool)
	for _, topic := range c.Topics {
		if topic.ID == "" {
			return fmt.Errorf("topic with empty id")
		}
		for _, session := range topic.Sessions {
			if session.ID == "" {
				return fmt.Errorf("topic %s: session with empty id", topic.ID)
			}
			if session.MasteryThreshold != nil {
				if t := *session.MasteryThreshold; t < 0 || t > 100 {
					return fmt.Errorf("session %s: mastery threshold %v out of range", session.ID, t)
				}
			}
			for _, section := range session.Sections {
				if section.ID == "" {
					return fmt.Errorf("session %s: section with empty id", session.ID)
				}
				if seen[section.ID] {
					return fmt.Errorf("duplicate section id %s", section.ID)
				}
				seen[section.ID] = true
				switch section.Type {
				case models.SectionContent, models.SectionQuiz, models.SectionCaseStudy, models.SectionVideo:
				default:
					return fmt.Errorf("section %s: unknown type %q", section.ID, section.Type)
				}
			}
		}
	}
	return nil
}
