package identity

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/i3pm/eventcore/internal/model"
)

// Classify consults the explicit scoped_classes/global_classes sets first,
// then runs patterns in descending priority order (first match wins), and
// defaults to scoped if nothing matches: an unrecognized window is safer
// hidden per-project than left visible everywhere.
func Classify(class string, c model.Classification) model.Scope {
	if _, ok := c.ScopedClasses[class]; ok {
		return model.ScopeScoped
	}
	if _, ok := c.GlobalClasses[class]; ok {
		return model.ScopeGlobal
	}

	patterns := make([]model.ClassPattern, len(c.Patterns))
	copy(patterns, c.Patterns)
	sort.SliceStable(patterns, func(i, j int) bool { return patterns[i].Priority > patterns[j].Priority })

	for _, p := range patterns {
		if matchPattern(p.Pattern, class) {
			return p.Scope
		}
	}

	return model.ScopeScoped
}

// ValidateClassification rejects a classification whose scoped/global sets
// intersect: a class can't be both always-visible and per-project-hidden.
func ValidateClassification(c model.Classification) error {
	for class := range c.ScopedClasses {
		if _, ok := c.GlobalClasses[class]; ok {
			return errIntersecting(class)
		}
	}
	return nil
}

type classificationError struct{ class string }

func (e classificationError) Error() string {
	return "class \"" + e.class + "\" appears in both scoped_classes and global_classes"
}

func errIntersecting(class string) error { return classificationError{class: class} }

// matchPattern dispatches on the pattern's "kind:payload" prefix: glob,
// regex, or literal.
func matchPattern(pattern, class string) bool {
	switch {
	case strings.HasPrefix(pattern, "glob:"):
		ok, _ := filepath.Match(strings.TrimPrefix(pattern, "glob:"), class)
		return ok
	case strings.HasPrefix(pattern, "regex:"):
		re, err := regexp.Compile("^(?:" + strings.TrimPrefix(pattern, "regex:") + ")$")
		if err != nil {
			return false
		}
		return re.MatchString(class)
	case strings.HasPrefix(pattern, "literal:"):
		return strings.TrimPrefix(pattern, "literal:") == class
	default:
		return false
	}
}
