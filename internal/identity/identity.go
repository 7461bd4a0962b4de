// Package identity implements C7: extracts application identity and
// project association from window attributes, PID-derived environment,
// marks, and heuristic title parsing; produces a canonical mark string.
package identity

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/i3pm/eventcore/internal/model"
)

// WindowAttrs is the minimal fresh-from-the-WM shape the resolver needs.
type WindowAttrs struct {
	ConID     int64
	Class     string
	Instance  string
	Title     string
	WMPID     int64
	SurfaceID int64
}

// Result is the resolver's output.
type Result struct {
	Project    string
	App        string
	Scope      model.Scope
	ContextKey string
	Mark       string
	ExtraMarks []string
}

// Resolver derives a window's project/app identity from its environment,
// marks, and title.
type Resolver struct {
	// TitleOverrideClasses are classes whose title is parsed for a
	// project-override (defaults to {"Code"}: VSCode's title reliably
	// encodes the open folder/project name, so it is the one class worth
	// the extra title-parsing pass).
	TitleOverrideClasses map[string]struct{}
}

// NewResolver builds a Resolver with the given title-override class set.
// If titleOverrideClasses is nil, defaults to {"Code"}.
func NewResolver(titleOverrideClasses map[string]struct{}) *Resolver {
	if titleOverrideClasses == nil {
		titleOverrideClasses = map[string]struct{}{"Code": {}}
	}
	return &Resolver{TitleOverrideClasses: titleOverrideClasses}
}

// titleOverridePattern builds "(?:<class> - )?<project> - …" anchored to
// the window's own class, since project names themselves may contain the
// "-" that separates title segments.
func titleOverridePattern(class string) *regexp.Regexp {
	return regexp.MustCompile(`^(?:` + regexp.QuoteMeta(class) + ` - )?(.+?) - .*$`)
}

// Resolve derives identity for a window given its attributes, its I3PM_*
// environment (nil if unavailable), and the classification state to
// consult when the environment yields nothing.
func (r *Resolver) Resolve(attrs WindowAttrs, env map[string]string, projectExists func(name string) bool, classification model.Classification) Result {
	var res Result

	if env != nil {
		if project, ok := env["I3PM_PROJECT_NAME"]; ok {
			if app, ok := env["I3PM_APP_NAME"]; ok {
				res.Project = project
				res.App = app
				res.Scope = model.ScopeScoped
				if scope, ok := env["I3PM_SCOPE"]; ok && scope != "" {
					res.Scope = model.Scope(scope)
				}
			}
		}
		if ctxKey, ok := env["I3PM_CONTEXT_KEY"]; ok && ctxKey != "" {
			res.ContextKey = ctxKey
		}
	}

	if _, override := r.TitleOverrideClasses[attrs.Class]; override && res.Project != "" {
		if m := titleOverridePattern(attrs.Class).FindStringSubmatch(attrs.Title); len(m) == 2 {
			candidate := strings.TrimSpace(m[1])
			if candidate != "" && projectExists != nil && projectExists(candidate) {
				res.Project = candidate
			}
		}
	}

	if res.Project == "" && res.App == "" {
		scope := Classify(attrs.Class, classification)
		res.Scope = scope
		res.App = attrs.Class
	}

	res.Mark = fmt.Sprintf("%s:%s:%s:%d", res.Scope, res.App, res.Project, attrs.ConID)
	if res.ContextKey != "" {
		res.ExtraMarks = append(res.ExtraMarks, "ctx:"+res.ContextKey)
	}
	return res
}
