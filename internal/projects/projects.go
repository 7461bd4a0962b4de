// Package projects loads and persists per-project configuration files
// (projects/<name>.json) and the active-project pointer
// (active-project.json), the durable inputs C9's switch coordinator and
// C12's fuzzy project match consult.
package projects

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/i3pm/eventcore/internal/model"
)

// projectJSON is the on-disk shape of projects/<name>.json.
type projectJSON struct {
	Name                 string            `json:"name"`
	DisplayName          string            `json:"display_name"`
	Icon                 string            `json:"icon"`
	Directory            string            `json:"directory"`
	ScopedClasses        []string          `json:"scoped_classes"`
	AutoLaunch           []launchSpecJSON  `json:"auto_launch"`
	WorkspacePreferences map[string]string `json:"workspace_preferences"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

type launchSpecJSON struct {
	Command     string            `json:"command"`
	Workspace   int               `json:"workspace"`
	Env         map[string]string `json:"env,omitempty"`
	LaunchDelay float64           `json:"launch_delay_seconds,omitempty"`
	WaitForMark string            `json:"wait_for_mark,omitempty"`
	WaitTimeout float64           `json:"wait_timeout_seconds,omitempty"`
}

func fromJSON(j projectJSON) model.ProjectConfig {
	scoped := make(map[string]struct{}, len(j.ScopedClasses))
	for _, c := range j.ScopedClasses {
		scoped[c] = struct{}{}
	}

	prefs := make(map[int]string, len(j.WorkspacePreferences))
	for k, v := range j.WorkspacePreferences {
		if n, err := strconv.Atoi(k); err == nil {
			prefs[n] = v
		}
	}

	launches := make([]model.LaunchSpec, 0, len(j.AutoLaunch))
	for _, l := range j.AutoLaunch {
		launches = append(launches, model.LaunchSpec{
			Command:     l.Command,
			Workspace:   l.Workspace,
			Env:         l.Env,
			LaunchDelay: time.Duration(l.LaunchDelay * float64(time.Second)),
			WaitForMark: l.WaitForMark,
			WaitTimeout: time.Duration(l.WaitTimeout * float64(time.Second)),
		})
	}

	return model.ProjectConfig{
		Name:                 j.Name,
		DisplayName:          j.DisplayName,
		Icon:                 j.Icon,
		Directory:            j.Directory,
		ScopedClasses:        scoped,
		AutoLaunch:           launches,
		WorkspacePreferences: prefs,
	}
}

// Store is a directory-backed collection of project configs, one JSON file
// per project, cached in memory and refreshed on demand.
type Store struct {
	mu       sync.RWMutex
	dir      string
	projects map[string]model.ProjectConfig
}

// NewStore builds a Store reading from dir. Load must be called before any
// lookups return data.
func NewStore(dir string) *Store {
	return &Store{dir: dir, projects: make(map[string]model.ProjectConfig)}
}

// Load globs projects/*.json and replaces the in-memory set, skipping any
// file that fails to parse rather than failing the whole load — a single
// malformed project file must not take down every other project.
func (s *Store) Load() error {
	pattern := filepath.Join(s.dir, "*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("glob project configs: %w", err)
	}

	loaded := make(map[string]model.ProjectConfig, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var j projectJSON
		if err := json.Unmarshal(data, &j); err != nil {
			continue
		}
		if j.Name == "" {
			j.Name = strings.TrimSuffix(filepath.Base(path), ".json")
		}
		loaded[j.Name] = fromJSON(j)
	}

	s.mu.Lock()
	s.projects = loaded
	s.mu.Unlock()
	return nil
}

// Get returns a project's config by name.
func (s *Store) Get(name string) (model.ProjectConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[name]
	return p, ok
}

// Exists reports whether name is a known project, satisfying the
// identity resolver's projectExists callback.
func (s *Store) Exists(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Names returns every known project name, satisfying modemgr.ProjectLister.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.projects))
	for name := range s.projects {
		names = append(names, name)
	}
	return names
}

// activeProjectJSON is the on-disk shape of active-project.json.
type activeProjectJSON struct {
	ProjectName     string    `json:"project_name"`
	ActivatedAt     time.Time `json:"activated_at"`
	PreviousProject string    `json:"previous_project"`
}

// LoadActiveProject reads active-project.json, returning a zero-value
// state (global, no previous) if the file does not exist yet.
func LoadActiveProject(path string) (model.ActiveProjectState, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return model.ActiveProjectState{}, nil
	}
	if err != nil {
		return model.ActiveProjectState{}, fmt.Errorf("read active-project.json: %w", err)
	}
	var j activeProjectJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return model.ActiveProjectState{}, fmt.Errorf("parse active-project.json: %w", err)
	}
	return model.ActiveProjectState{
		Current:     j.ProjectName,
		Previous:    j.PreviousProject,
		ActivatedAt: j.ActivatedAt,
	}, nil
}

// SaveActiveProject atomically writes active-project.json via tmp+rename,
// the same durability pattern the teacher's case store uses for case.json.
func SaveActiveProject(path string, state model.ActiveProjectState) error {
	j := activeProjectJSON{
		ProjectName:     state.Current,
		ActivatedAt:     time.Now(),
		PreviousProject: state.Previous,
	}
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal active-project.json: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename tmp to active-project.json: %w", err)
	}
	return nil
}
