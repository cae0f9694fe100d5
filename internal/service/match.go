package service

import (
	"fmt"
	"strings"
)

// MatchProject finds the project named name (case-insensitive, trimmed).
func MatchProject(projects []Project, name string) (Project, error) {
	name = strings.TrimSpace(name)
	nameLower := strings.ToLower(name)

	var matches []Project
	for _, p := range projects {
		if strings.ToLower(strings.TrimSpace(p.Title)) == nameLower {
			matches = append(matches, p)
		}
	}

	switch len(matches) {
	case 0:
		return Project{}, fmt.Errorf("%w: project %s", ErrNotFound, name)
	case 1:
		return matches[0], nil
	default:
		return Project{}, fmt.Errorf("%w: project %s", ErrAmbiguous, name)
	}
}
