package identity

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/i3pm/eventcore/internal/model"
)

// classificationJSON is the on-disk shape of app-classes.json.
type classificationJSON struct {
	ScopedClasses []string             `json:"scoped_classes"`
	GlobalClasses []string             `json:"global_classes"`
	Patterns      []classPatternJSON   `json:"patterns"`
}

type classPatternJSON struct {
	Pattern     string      `json:"pattern"`
	Scope       model.Scope `json:"scope"`
	Priority    int         `json:"priority"`
	Description string      `json:"description"`
}

// LoadClassification reads app-classes.json, the fallback C7 consults when
// a window carries no I3PM_* environment. A missing file yields an empty,
// always-scoped classification rather than an error, matching the teacher
// codebase's preference for resilient defaults over hard startup failures.
func LoadClassification(path string) (model.Classification, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return model.Classification{}, nil
	}
	if err != nil {
		return model.Classification{}, fmt.Errorf("read classification file: %w", err)
	}

	var j classificationJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return model.Classification{}, fmt.Errorf("parse classification file: %w", err)
	}

	scoped := make(map[string]struct{}, len(j.ScopedClasses))
	for _, c := range j.ScopedClasses {
		scoped[c] = struct{}{}
	}
	global := make(map[string]struct{}, len(j.GlobalClasses))
	for _, c := range j.GlobalClasses {
		global[c] = struct{}{}
	}
	patterns := make([]model.ClassPattern, 0, len(j.Patterns))
	for _, p := range j.Patterns {
		patterns = append(patterns, model.ClassPattern{
			Pattern:     p.Pattern,
			Scope:       p.Scope,
			Priority:    p.Priority,
			Description: p.Description,
		})
	}

	c := model.Classification{ScopedClasses: scoped, GlobalClasses: global, Patterns: patterns}
	if err := ValidateClassification(c); err != nil {
		return model.Classification{}, err
	}
	return c, nil
}
