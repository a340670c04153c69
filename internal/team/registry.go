package team

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/dkessler/parley/internal/directive"
	"github.com/dkessler/parley/pkg/models"
)

// Registry holds the teams loaded from a directory of YAML definition
// files, optionally kept fresh by a file watcher.
type Registry struct {
	dir string

	mu    sync.RWMutex
	teams map[string]*models.Team

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRegistry creates a registry over the given directory.
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:   dir,
		teams: make(map[string]*models.Team),
	}
}

// LoadAll loads every team definition in the registry directory. Files that
// fail to parse or validate are logged and skipped; a missing directory is
// not an error.
func (r *Registry) LoadAll() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read teams directory: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams = make(map[string]*models.Team)
	for _, entry := range entries {
		if entry.IsDir() || !isTeamFile(entry.Name()) {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		team, err := LoadFile(path)
		if err != nil {
			log.Printf("[team] skipping %s: %v", entry.Name(), err)
			continue
		}
		r.teams[team.ID] = team
	}
	return nil
}

// Get returns the team with the given id or name (case-insensitive,
// normalized), or nil.
func (r *Registry) Get(idOrName string) *models.Team {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if team, ok := r.teams[idOrName]; ok {
		return team
	}
	want := directive.Normalize(idOrName)
	for _, team := range r.teams {
		if directive.Normalize(team.ID) == want || directive.Normalize(team.Name) == want {
			return team
		}
	}
	return nil
}

// List returns all loaded teams sorted by name.
func (r *Registry) List() []*models.Team {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Team, 0, len(r.teams))
	for _, team := range r.teams {
		out = append(out, team)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Watch starts a file watcher that reloads team files as they change.
// Returns an error only if the watcher cannot be created or the directory
// cannot be watched.
func (r *Registry) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", r.dir, err)
	}

	r.watcher = watcher
	r.done = make(chan struct{})
	go r.watchLoop()
	return nil
}

// watchLoop applies file events to the loaded team set.
func (r *Registry) watchLoop() {
	for {
		select {
		case <-r.done:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !isTeamFile(filepath.Base(event.Name)) {
				continue
			}
			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				team, err := LoadFile(event.Name)
				if err != nil {
					log.Printf("[team] ignoring %s: %v", filepath.Base(event.Name), err)
					continue
				}
				r.mu.Lock()
				r.teams[team.ID] = team
				r.mu.Unlock()
				log.Printf("[team] reloaded team %s", team.ID)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				id := strings.TrimSuffix(filepath.Base(event.Name), filepath.Ext(event.Name))
				r.mu.Lock()
				delete(r.teams, id)
				r.mu.Unlock()
			}
		case <-r.watcher.Errors:
			// Ignore errors, keep watching
		}
	}
}

// Close stops the watcher if one is running.
func (r *Registry) Close() {
	if r.watcher != nil {
		close(r.done)
		r.watcher.Close()
		r.watcher = nil
	}
}

// isTeamFile reports whether the file name looks like a team definition.
func isTeamFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
