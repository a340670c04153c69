// Package team loads and validates team definitions from YAML files.
package team

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/dkessler/parley/internal/directive"
	"github.com/dkessler/parley/pkg/models"
)

// teamSpec is the YAML shape of a team definition file.
type teamSpec struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Task        string       `yaml:"task"`
	Members     []memberSpec `yaml:"members"`
}

// memberSpec is the YAML shape of one member entry.
type memberSpec struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Kind        string `yaml:"kind"`
	Worker      string `yaml:"worker"`
}

// LoadFile reads and validates a single team definition file.
func LoadFile(path string) (*models.Team, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read team file: %w", err)
	}

	var spec teamSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse team file %s: %w", path, err)
	}

	team, err := spec.team()
	if err != nil {
		return nil, fmt.Errorf("team file %s: %w", path, err)
	}
	if team.ID == "" {
		// File name is the fallback id.
		team.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return team, nil
}

// team converts the spec into a validated model.
func (s *teamSpec) team() (*models.Team, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("team name is required")
	}
	if len(s.Members) == 0 {
		return nil, fmt.Errorf("team %q has no members", s.Name)
	}

	team := &models.Team{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Task:        s.Task,
	}

	humans := 0
	seen := make(map[string]string)
	for i, ms := range s.Members {
		if ms.Name == "" {
			return nil, fmt.Errorf("member %d has no name", i)
		}

		kind := models.MemberKind(ms.Kind)
		if ms.Kind == "" {
			kind = models.MemberKindAI
		}
		if !kind.Valid() {
			return nil, fmt.Errorf("member %q has unknown kind %q", ms.Name, ms.Kind)
		}
		if kind == models.MemberKindHuman {
			humans++
		}

		worker := ms.Worker
		if kind == models.MemberKindAI && worker == "" {
			worker = "claude"
		}
		if kind == models.MemberKindHuman && worker != "" {
			return nil, fmt.Errorf("human member %q cannot have a worker", ms.Name)
		}

		id := ms.ID
		if id == "" {
			id = directive.Normalize(ms.Name)
		}
		display := ms.DisplayName
		if display == "" {
			display = ms.Name
		}

		key := directive.Normalize(ms.Name)
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("members %q and %q collide after name normalization", prev, ms.Name)
		}
		seen[key] = ms.Name

		team.Members = append(team.Members, models.Member{
			ID:           id,
			Name:         ms.Name,
			DisplayName:  display,
			Kind:         kind,
			WorkerConfig: worker,
			Position:     i,
		})
	}

	if humans == 0 {
		return nil, fmt.Errorf("team %q needs at least one human member", s.Name)
	}

	return team, nil
}
