package roots

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// manifest is the on-disk shape of a workspace manifest:
//
//	roots:
//	  - /home/user/project
//	  - ../other-project
type manifest struct {
	Roots []string `yaml:"roots"`
}

// ManifestTracker is a Tracker backed by a YAML manifest file. Reload
// re-reads the file and notifies subscribers of the delta.
type ManifestTracker struct {
	path string

	mu    sync.Mutex
	roots []string

	subscribers subscriberList
}

// NewManifestTracker loads the manifest at path and returns a tracker over
// its roots.
func NewManifestTracker(path string) (*ManifestTracker, error) {
	t := &ManifestTracker{path: path}
	rootList, err := t.load()
	if err != nil {
		return nil, err
	}
	t.roots = rootList
	return t, nil
}

// Roots returns the roots from the most recent load.
func (t *ManifestTracker) Roots() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.roots))
	copy(out, t.roots)
	return out
}

// Subscribe registers fn for future root changes.
func (t *ManifestTracker) Subscribe(fn func(Change)) func() {
	return t.subscribers.add(fn)
}

// Reload re-reads the manifest and notifies subscribers of any delta.
func (t *ManifestTracker) Reload() error {
	rootList, err := t.load()
	if err != nil {
		return err
	}

	t.mu.Lock()
	change := diff(t.roots, rootList)
	t.roots = rootList
	t.mu.Unlock()

	if len(change.Added) > 0 || len(change.Removed) > 0 {
		t.subscribers.notify(change)
	}
	return nil
}

func (t *ManifestTracker) load() ([]string, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", t.path, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", t.path, err)
	}
	return absAll(m.Roots), nil
}
