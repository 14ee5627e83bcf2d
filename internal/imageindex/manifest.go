package imageindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// manifestFile sits next to the vector data and remembers which files are
// indexed at which modification time, so unchanged files are skipped and
// deleted files can be pruned without scanning the collection.
const manifestFile = "manifest.json"

// ManifestEntry records one indexed image.
type ManifestEntry struct {
	MTimeUnix int64  `json:"mtime"`
	DocID     string `json:"doc_id"`
}

// Manifest is the path-to-entry index companion of the vector store.
type Manifest struct {
	mu      sync.Mutex
	path    string
	Entries map[string]ManifestEntry `json:"entries"`
}

// LoadManifest reads the manifest from dir, returning an empty one when
// none exists yet.
func LoadManifest(dir string) (*Manifest, error) {
	m := &Manifest{
		path:    filepath.Join(dir, manifestFile),
		Entries: make(map[string]ManifestEntry),
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Entries == nil {
		m.Entries = make(map[string]ManifestEntry)
	}
	return m, nil
}

// Get returns the entry for a path.
func (m *Manifest) Get(path string) (ManifestEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.Entries[path]
	return entry, ok
}

// Set records an entry for a path.
func (m *Manifest) Set(path string, entry ManifestEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries[path] = entry
}

// Remove drops the entry for a path.
func (m *Manifest) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Entries, path)
}

// Paths returns all indexed paths.
func (m *Manifest) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.Entries))
	for path := range m.Entries {
		paths = append(paths, path)
	}
	return paths
}

// Save writes the manifest atomically.
func (m *Manifest) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return os.Rename(tmp, m.path)
}
