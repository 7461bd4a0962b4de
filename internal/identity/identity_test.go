package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i3pm/eventcore/internal/model"
)

func TestResolveFromEnvironment(t *testing.T) {
	r := NewResolver(nil)
	attrs := WindowAttrs{ConID: 42, Class: "firefox"}
	env := map[string]string{"I3PM_PROJECT_NAME": "proj-a", "I3PM_APP_NAME": "firefox"}

	res := r.Resolve(attrs, env, nil, model.Classification{})

	assert.Equal(t, "proj-a", res.Project)
	assert.Equal(t, "firefox", res.App)
	assert.Equal(t, model.ScopeScoped, res.Scope)
	assert.Equal(t, "scoped:firefox:proj-a:42", res.Mark)
}

func TestResolveTitleOverrideForConfiguredClass(t *testing.T) {
	r := NewResolver(map[string]struct{}{"Code": {}})
	attrs := WindowAttrs{ConID: 7, Class: "Code", Title: "Code - proj-b - main.go"}
	env := map[string]string{"I3PM_PROJECT_NAME": "proj-a", "I3PM_APP_NAME": "vscode"}

	res := r.Resolve(attrs, env, func(name string) bool { return name == "proj-b" }, model.Classification{})

	assert.Equal(t, "proj-b", res.Project, "title override should win when the parsed project exists")
}

func TestResolveTitleOverrideIgnoredForOtherClasses(t *testing.T) {
	r := NewResolver(map[string]struct{}{"Code": {}})
	attrs := WindowAttrs{ConID: 7, Class: "firefox", Title: "firefox - proj-b - page"}
	env := map[string]string{"I3PM_PROJECT_NAME": "proj-a", "I3PM_APP_NAME": "firefox"}

	res := r.Resolve(attrs, env, func(name string) bool { return true }, model.Classification{})

	assert.Equal(t, "proj-a", res.Project, "title override only applies to configured classes")
}

func TestResolveFallsBackToClassification(t *testing.T) {
	r := NewResolver(nil)
	classification := model.Classification{
		GlobalClasses: map[string]struct{}{"firefox": {}},
	}
	res := r.Resolve(WindowAttrs{ConID: 1, Class: "firefox"}, nil, nil, classification)

	assert.Equal(t, model.ScopeGlobal, res.Scope)
	assert.Equal(t, "", res.Project)
}

func TestResolveContextMark(t *testing.T) {
	r := NewResolver(nil)
	env := map[string]string{"I3PM_PROJECT_NAME": "a", "I3PM_APP_NAME": "x", "I3PM_CONTEXT_KEY": "ctx1"}
	res := r.Resolve(WindowAttrs{ConID: 1, Class: "x"}, env, nil, model.Classification{})

	require.Len(t, res.ExtraMarks, 1)
	assert.Equal(t, "ctx:ctx1", res.ExtraMarks[0])
}

func TestClassifyScopedClassesSet(t *testing.T) {
	c := model.Classification{ScopedClasses: map[string]struct{}{"Code": {}}}
	assert.Equal(t, model.ScopeScoped, Classify("Code", c))
}

func TestClassifyGlobPattern(t *testing.T) {
	c := model.Classification{
		Patterns: []model.ClassPattern{{Pattern: "glob:Slack*", Scope: model.ScopeGlobal, Priority: 10}},
	}
	assert.Equal(t, model.ScopeGlobal, Classify("Slack", c))
}

func TestClassifyRegexPattern(t *testing.T) {
	c := model.Classification{
		Patterns: []model.ClassPattern{{Pattern: "regex:^mpv$", Scope: model.ScopeScoped, Priority: 5}},
	}
	assert.Equal(t, model.ScopeScoped, Classify("mpv", c))
}

func TestClassifyPriorityOrderFirstMatchWins(t *testing.T) {
	c := model.Classification{
		Patterns: []model.ClassPattern{
			{Pattern: "glob:*", Scope: model.ScopeGlobal, Priority: 1},
			{Pattern: "literal:Code", Scope: model.ScopeScoped, Priority: 100},
		},
	}
	assert.Equal(t, model.ScopeScoped, Classify("Code", c))
}

func TestClassifyDefaultsScopedWhenNoMatch(t *testing.T) {
	assert.Equal(t, model.ScopeScoped, Classify("unknown-app", model.Classification{}))
}

func TestClassifyStableAcrossRepeatedCalls(t *testing.T) {
	c := model.Classification{GlobalClasses: map[string]struct{}{"firefox": {}}}
	first := Classify("firefox", c)
	second := Classify("firefox", c)
	assert.Equal(t, first, second)
}

func TestValidateClassificationRejectsIntersection(t *testing.T) {
	c := model.Classification{
		ScopedClasses: map[string]struct{}{"Code": {}},
		GlobalClasses: map[string]struct{}{"Code": {}},
	}
	assert.Error(t, ValidateClassification(c))
}

func TestValidateClassificationAcceptsDisjointSets(t *testing.T) {
	c := model.Classification{
		ScopedClasses: map[string]struct{}{"Code": {}},
		GlobalClasses: map[string]struct{}{"firefox": {}},
	}
	assert.NoError(t, ValidateClassification(c))
}
