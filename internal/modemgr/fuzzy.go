package modemgr

import (
	"sort"
	"strings"
)

// fuzzyMatchProject picks a single winning project for query, in priority
// order: exact, then prefix (alphabetically first among ties), then
// substring (alphabetically first), then (for a single-character query)
// the alphabetically-first project starting with that character.
func fuzzyMatchProject(query string, projects []string) (string, bool) {
	if query == "" || len(projects) == 0 {
		return "", false
	}
	q := strings.ToLower(query)

	sorted := append([]string(nil), projects...)
	sort.Strings(sorted)

	for _, p := range sorted {
		if strings.EqualFold(p, q) {
			return p, true
		}
	}
	for _, p := range sorted {
		if strings.HasPrefix(strings.ToLower(p), q) {
			return p, true
		}
	}
	for _, p := range sorted {
		if strings.Contains(strings.ToLower(p), q) {
			return p, true
		}
	}
	if len(q) == 1 {
		for _, p := range sorted {
			if strings.HasPrefix(strings.ToLower(p), q) {
				return p, true
			}
		}
	}
	return "", false
}

// ProjectScore is one entry of the richer scored project list fed to the
// preview UI on every char/backspace emission.
type ProjectScore struct {
	Name  string
	Score int
}

// ScoreProjects returns every project with a match score rather than a
// single winner, so a preview UI can rank candidates as the user types.
func ScoreProjects(query string, projects []string) []ProjectScore {
	q := strings.ToLower(query)
	out := make([]ProjectScore, 0, len(projects))
	for _, p := range projects {
		out = append(out, ProjectScore{Name: p, Score: scoreOne(q, strings.ToLower(p))})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func scoreOne(query, name string) int {
	if query == "" {
		return 0
	}
	if query == name {
		return 1000
	}
	if strings.HasPrefix(name, query) {
		return 500 + 100*len(query)/len(name)
	}
	if idx := strings.Index(name, query); idx > 0 {
		score := 100 - 10*idx
		if score < 50 {
			score = 50
		}
		return score
	}
	return charByCharScore(query, name)
}

// charByCharScore matches query characters against name in order, awarding
// +20 for each consecutive pair and subtracting the gap size otherwise,
// floored at 10. Returns 0 if no character of query appears in name at all.
func charByCharScore(query, name string) int {
	score := 0
	matchedAny := false
	pos := -1
	lastMatchPos := -1
	for _, ch := range query {
		idx := strings.IndexRune(name[pos+1:], ch)
		if idx < 0 {
			continue
		}
		actualPos := pos + 1 + idx
		matchedAny = true
		if lastMatchPos >= 0 {
			gap := actualPos - lastMatchPos - 1
			if gap == 0 {
				score += 20
			} else {
				score -= gap
			}
		}
		lastMatchPos = actualPos
		pos = actualPos
	}
	if !matchedAny {
		return 0
	}
	if score < 10 {
		score = 10
	}
	return score
}
